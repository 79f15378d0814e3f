package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should expect when reading notes and follow when writing
// files into the library by other means.
const NoteFormatContract = `# Notis Note Format Contract

Every Markdown note managed by Notis carries a YAML frontmatter header.

## Structure

` + "```" + `markdown
---
uuid: 7e9d5c2a-1b34-4f8e-9c6d-2a5b8e1f4c7d   # REQUIRED - stable identity, engine-assigned
title: Human-readable title                   # display name in search and lists
tags:                                         # OPTIONAL - YAML list; used for filtering
  - tag-one
  - tag-two
created: 2025-01-15T09:30:00Z                 # OPTIONAL - ISO-8601 date or datetime
modified: 2025-01-20T17:45:00Z                # maintained by the engine on every write
status: normal                                # normal | favorite | trashed
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **The ` + "`" + `uuid` + "`" + ` field is the note's identity.** Never invent or change it.
   The ` + "`" + `create_note` + "`" + ` tool takes the Markdown BODY only; the engine writes
   the frontmatter and assigns the uuid.
2. **Files without a valid frontmatter uuid are unmanaged.** They stay on disk
   untouched but are invisible to search and sync.
3. **Titles** come from the ` + "`" + `title` + "`" + ` field, falling back to the first
   ` + "`" + `# heading` + "`" + ` in the body.
4. **Tags** are free-form strings; filtering is case-insensitive.
5. **File paths** end with ` + "`" + `.md` + "`" + `, use forward slashes, and are derived
   from the title (slugged, lowercase, collisions suffixed ` + "`" + `-2` + "`" + `, ` + "`" + `-3` + "`" + `).
6. **Encoding** is UTF-8.
7. **Renames preserve identity**: the uuid follows the file, so move notes with
   the move operation rather than delete-and-recreate.

## Assets & Images

- Upload assets via the ` + "`" + `upload_asset` + "`" + ` tool. It returns a
  ` + "`" + `markdownImage` + "`" + ` field ready to paste into a note body.
- Assets live in the shared ` + "`" + `assets/` + "`" + ` directory inside the notes root
  (flat, no sub-folders) and are never scanned as notes.
- Reference them with the absolute path: ` + "`" + `![description](/attachments/filename.png)` + "`" + `
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.

## Example

` + "```" + `markdown
---
uuid: 0f8fad5b-d9cb-469f-a165-70867728950e
title: Weekly standup 2025-01-20
tags:
  - meeting-notes
  - project-x
created: 2025-01-20T09:00:00Z
modified: 2025-01-20T09:40:00Z
status: normal
---

# Weekly standup 2025-01-20

Attendees: Alice, Bob.

![Whiteboard photo](/attachments/standup-2025-01-20.jpg)

## Action items

- Alice to review the design doc
- Bob to update the roadmap
` + "```" + `
`
