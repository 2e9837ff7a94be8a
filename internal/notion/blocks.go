package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// maxTextLength is Notion's limit for a single rich text object
const maxTextLength = 2000

// convertMarkdownToBlocks converts markdown content to Notion blocks.
// A leading front-matter block is kept verbatim as a code block.
func (c *Client) convertMarkdownToBlocks(content string) []notionapi.Block {
	var blocks []notionapi.Block
	lines := strings.Split(content, "\n")

	start := 0
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "---" {
		for i := 1; i < len(lines); i++ {
			if t := strings.TrimSpace(lines[i]); t == "---" || t == "..." {
				blocks = append(blocks, c.createCodeBlock(strings.Join(lines[1:i], "\n"), "yaml"))
				start = i + 1
				break
			}
		}
	}

	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		// Handle headings
		switch {
		case strings.HasPrefix(line, "### "):
			blocks = append(blocks, c.createHeadingBlock(line[4:], 3))
			continue
		case strings.HasPrefix(line, "## "):
			blocks = append(blocks, c.createHeadingBlock(line[3:], 2))
			continue
		case strings.HasPrefix(line, "# "):
			blocks = append(blocks, c.createHeadingBlock(line[2:], 1))
			continue
		}

		// Handle code blocks
		if strings.HasPrefix(line, "```") {
			language := strings.TrimSpace(strings.TrimPrefix(line, "```"))
			codeContent := []string{}
			i++
			for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
				codeContent = append(codeContent, lines[i])
				i++
			}
			blocks = append(blocks, c.createCodeBlock(strings.Join(codeContent, "\n"), language))
			continue
		}

		// Handle bullet points
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			blocks = append(blocks, c.createBulletedListBlock(line[2:]))
			continue
		}

		// Handle regular text
		blocks = append(blocks, c.createParagraphBlock(line))
	}

	return blocks
}

// chunkText splits text into rich text objects within Notion's length limit
func chunkText(text string) []notionapi.RichText {
	if text == "" {
		return richText("")
	}
	var out []notionapi.RichText
	count, start := 0, 0
	for i := range text {
		if count == maxTextLength {
			out = append(out, richText(text[start:i])...)
			start, count = i, 0
		}
		count++
	}
	return append(out, richText(text[start:])...)
}

// createHeadingBlock creates a heading block with the specified level
func (c *Client) createHeadingBlock(text string, level int) notionapi.Block {
	rt := chunkText(text)

	switch level {
	case 1:
		return &notionapi.Heading1Block{
			BasicBlock: notionapi.BasicBlock{
				Object: "block",
				Type:   notionapi.BlockTypeHeading1,
			},
			Heading1: notionapi.Heading{
				RichText: rt,
			},
		}
	case 2:
		return &notionapi.Heading2Block{
			BasicBlock: notionapi.BasicBlock{
				Object: "block",
				Type:   notionapi.BlockTypeHeading2,
			},
			Heading2: notionapi.Heading{
				RichText: rt,
			},
		}
	default:
		return &notionapi.Heading3Block{
			BasicBlock: notionapi.BasicBlock{
				Object: "block",
				Type:   notionapi.BlockTypeHeading3,
			},
			Heading3: notionapi.Heading{
				RichText: rt,
			},
		}
	}
}

// createCodeBlock creates a code block
func (c *Client) createCodeBlock(content, language string) notionapi.Block {
	if language == "" {
		language = "plain text"
	}
	return &notionapi.CodeBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: "block",
			Type:   notionapi.BlockTypeCode,
		},
		Code: notionapi.Code{
			RichText: chunkText(content),
			Language: language,
		},
	}
}

// createBulletedListBlock creates a bulleted list item block
func (c *Client) createBulletedListBlock(text string) notionapi.Block {
	return &notionapi.BulletedListItemBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: "block",
			Type:   notionapi.BlockTypeBulletedListItem,
		},
		BulletedListItem: notionapi.ListItem{
			RichText: chunkText(text),
		},
	}
}

// createParagraphBlock creates a paragraph block
func (c *Client) createParagraphBlock(text string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: "block",
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{
			RichText: chunkText(text),
		},
	}
}
