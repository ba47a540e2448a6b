package enrich

import (
	"fmt"
	"strings"

	"github.com/nwilson314/stash/models"
)

const categorizationSystemPrompt = "You are an assistant that organizes a personal collection of saved links. " +
	"You assign each link a single category and write a short summary of what it is about."

const summarySystemPrompt = "You are an assistant that writes clear, useful summaries of saved web content."

const digestSystemPrompt = "You are a writer producing a short weekly digest of the links a reader saved. " +
	"You write warm, engaging prose, never bullet lists."

// buildCategorizationPrompt assembles the save-time prompt: link
// details, whatever page text we captured, and the user's existing
// categories with instructions to reuse them.
func buildCategorizationPrompt(link *models.Link, categories []string, content string) string {
	var b strings.Builder

	b.WriteString("Categorize this link and write a one or two sentence summary of it.\n\n")
	fmt.Fprintf(&b, "URL: %s\n", link.URL)
	if link.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", link.Title)
	}
	if link.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", link.Author)
	}
	if link.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %d seconds\n", link.Duration)
	}
	fmt.Fprintf(&b, "Content type: %s\n", link.ContentType)
	if link.Note != "" {
		fmt.Fprintf(&b, "User's note: %s\n", link.Note)
	}

	if content != "" {
		b.WriteString("\nPage content:\n")
		b.WriteString(content)
		b.WriteString("\n")
	}

	if len(categories) > 0 {
		fmt.Fprintf(&b, "\nExisting categories: %s\n", strings.Join(categories, ", "))
		b.WriteString("\nWe strongly prefer that you stick to an existing category when one fits. " +
			"Only create a new category if none of the existing ones apply.\n")
	} else {
		b.WriteString("\nThe user has no categories yet, so create an appropriate one.\n")
	}

	b.WriteString("When creating a new category, keep it short and avoid compound categorization " +
		"like \"Tech/Programming\". Use a single simple label.\n")

	return b.String()
}

// buildSummaryPrompt assembles the on-demand long-summary prompt.
func buildSummaryPrompt(link *models.Link, content string) string {
	var b strings.Builder

	b.WriteString("Summarize the following content. Cover the main points and any practical takeaways. " +
		"Write a few paragraphs of plain prose.\n\n")
	if link.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", link.Title)
	}
	fmt.Fprintf(&b, "URL: %s\n\n", link.URL)
	b.WriteString("Content:\n")
	b.WriteString(content)

	return b.String()
}

// buildDigestPrompt assembles the weekly digest prompt from one user's
// links, grouped by category.
func buildDigestPrompt(data *models.NewsletterData) string {
	var b strings.Builder

	b.WriteString("Write a weekly digest article about the links this reader saved.\n\n")
	b.WriteString("Links saved this week:\n")

	byCategory := make(map[string][]models.NewsletterLink)
	var order []string
	for _, link := range data.Links {
		category := link.Category
		if category == "" {
			category = "Uncategorized"
		}
		if _, seen := byCategory[category]; !seen {
			order = append(order, category)
		}
		byCategory[category] = append(byCategory[category], link)
	}

	for _, category := range order {
		fmt.Fprintf(&b, "\n%s:\n", category)
		for _, link := range byCategory[category] {
			if link.ShortSummary != "" {
				fmt.Fprintf(&b, "- %s: %s\n", link.Title, link.ShortSummary)
			} else {
				fmt.Fprintf(&b, "- %s\n", link.Title)
			}
		}
	}

	b.WriteString("\nInstructions:\n")
	b.WriteString("1. Write a 300-500 word article in a friendly, conversational tone.\n")
	b.WriteString("2. Weave the links into a flowing narrative instead of listing them.\n")
	b.WriteString("3. Draw connections between related links where they exist.\n")
	b.WriteString("4. Do not include any URLs in the article.\n")
	b.WriteString("5. Refer to each link by its title.\n")

	return b.String()
}
