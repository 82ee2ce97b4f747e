package mcpserver

// NoteFormatContract describes the Markdown note format that LLM consumers
// should follow when creating or updating notes.
const NoteFormatContract = `# Note Format Contract

Every note in the vault is a UTF-8 Markdown file with an optional YAML front
matter block.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL – kept as metadata
aliases:                           # OPTIONAL – other names [[links]] may use
  - Short name
tags:                              # OPTIONAL – YAML list
  - tag-one
created: 2025-01-15                # OPTIONAL – ISO-8601 date or datetime
---

# Heading

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes (without .md extension).
Use [[target|label]] for display text that differs from the target.
` + "```" + `

## Rules

1. **Front matter** starts with ` + "`---`" + ` on the very first line and ends with the next
   ` + "`---`" + ` line. It must be a YAML mapping.
2. **Title.** Search results show the first level-1 heading, or the file name
   when the body has none. Start every note with one ` + "`# Heading`" + `.
3. **Aliases** (` + "`aliases`" + ` or ` + "`alias`" + `, string or list) let other notes link to
   this one by a different name; matching is case-insensitive.
4. **Wikilinks** use double brackets: ` + "`[[other-note]]`" + `. The target is the file
   stem; a folder prefix is allowed (` + "`[[folder/note]]`" + `). Anchors after ` + "`#`" + ` are
   ignored for linking.
5. **File paths** end with ` + "`.md`" + `, use forward slashes and stay inside the vault.
   Names starting with a dot are hidden and never indexed.
6. **Headings** level 1-3 form the table of contents; ` + "`read_note`" + ` can return a
   single section by heading text.
7. **Language policy:** file names, directory names and front matter keys are
   in English. Values and body text may use any language.

## Assets & Images

- Upload assets with the ` + "`upload_asset`" + ` tool. It returns a ` + "`markdownImage`" + ` field ready to paste into the note body.
- Assets live in the flat ` + "`attachments/`" + ` directory.
- Reference them with the absolute path: ` + "`![description](/attachments/filename.png)`" + `
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
aliases:
  - standup
tags:
  - meeting-notes
created: 2025-01-20
---

# Weekly standup 2025-01-20

![Whiteboard photo](/attachments/standup-2025-01-20.jpg)

## Action items

- [[alice]] to review the [[design-doc]]
- Bob to update [[project-x/roadmap|the roadmap]]
` + "```" + `
`
