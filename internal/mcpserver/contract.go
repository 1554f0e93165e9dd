package mcpserver

// OutputFormat describes how exported notes become Markdown files, for LLM
// reviewers judging a conversion.
const OutputFormat = `# craftmd Output Format

Every exported document becomes one Markdown file under the output root.

## Paths

- Documents live under their folder path; folders named Daily, Projects,
  Areas, Resources and Archive at the top level become "0 - Daily",
  "1 - Projects", "2 - Areas", "3 - Resources" and "4 - Archive".
- Documents outside any folder go to ` + "`Inbox/`" + `.
- A document titled like ` + "`2024.03.05`" + ` is a daily note and is written to
  ` + "`0 - Daily/2024/2024-03-05 Tue.md`" + `.
- In titles ":" becomes " - ", "/" becomes "-" and whitespace is collapsed.
- The title is the file name; the document body does not repeat it.
- Files end with a single newline. Their modification time is the
  document's creation time.

## Markdown

- Headings: title "#", subtitle "##", heading "###", strong "####".
- Lists use "- ", "1. " (numbering restarts whenever the list is
  interrupted) and "- [ ] " / "- [x] " for tasks; indented items get four
  spaces per level.
- Consecutive focus blocks form one block quote; every quoted line starts
  with "> ".
- Pages nested inside a document become "### #subpage" sections followed by
  their content and a "---" separator.
- Code blocks are fenced with their language; inline styles are rendered as
  ` + "`code`" + `, ==highlight==, **bold**, *italic* and ~~strikethrough~~.
- Links to another document become [[wikilinks]] with the target's file
  name; links to a day become [[YYYY-MM-DD Ddd]]; other links stay
  [text](url).
- Images and files are stored under ` + "`Attachments/`" + ` and embedded as
  ` + "`![name.png](Attachments/name.png)`" + ` with spaces encoded as %20.
  Files without an extension get ".png"; name clashes get "-1", "-2" suffixes.

## What is not converted

Tables, links to blocks inside a document and day links with an invalid
date are left out. Each omission is a diagnostic listed under the document's heading in
"Craft Export Results.md" and returned by get_diagnostics.

## Review statuses

- pending: converted, not yet looked at; set again whenever the output changes
- good: output is faithful
- bad: output is wrong and the converter needs fixing
- manual: needs hand editing; listed with its note in the results report
`
