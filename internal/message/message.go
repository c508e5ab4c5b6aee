// Package message parses and renders the structured commit message format
// that links local commits to their pull requests. A message is a title line
// followed by labeled sections; the section set is closed and the rendering
// order is fixed, so parse and build round-trip.
package message

import (
	"fmt"
	"sort"
	"strings"
)

// Section identifies one recognized part of a commit message.
type Section int

const (
	SectionTitle Section = iota
	SectionSummary
	SectionTestPlan
	SectionReviewers
	SectionPullRequest
)

// buildOrder is the fixed rendering order used by Build.
var buildOrder = []Section{
	SectionTitle,
	SectionSummary,
	SectionTestPlan,
	SectionReviewers,
	SectionPullRequest,
}

// sectionLabels maps the labels recognized in message bodies to sections.
// The title has no label (it is the first line) and the summary is the
// implicit section unlabeled body text falls into.
var sectionLabels = map[string]Section{
	"Summary":      SectionSummary,
	"Test Plan":    SectionTestPlan,
	"Test plan":    SectionTestPlan,
	"Reviewers":    SectionReviewers,
	"Reviewer":     SectionReviewers,
	"Pull Request": SectionPullRequest,
}

// Label returns the label a section is rendered with, or "" for sections
// rendered without one.
func (s Section) Label() string {
	switch s {
	case SectionTestPlan:
		return "Test Plan"
	case SectionReviewers:
		return "Reviewers"
	case SectionPullRequest:
		return "Pull Request"
	default:
		return ""
	}
}

// Sections maps each recognized section to its text.
type Sections map[Section]string

// Parse splits a commit message into its sections. The first line is the
// title; labeled blocks in the body are collected under their section, and
// unlabeled text is collected under Summary. Parse never fails: absent
// sections are simply absent from the result.
func Parse(raw string) Sections {
	sections := Sections{}
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return sections
	}

	sections[SectionTitle] = strings.TrimSpace(lines[0])

	current := SectionSummary
	var content []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(content, "\n"))
		if text != "" {
			if existing, ok := sections[current]; ok && existing != "" {
				text = existing + "\n\n" + text
			}
			sections[current] = text
		}
		content = content[:0]
	}

	for _, line := range lines[1:] {
		if label, rest, ok := matchLabel(line); ok {
			flush()
			current = label
			if rest != "" {
				content = append(content, rest)
			}
			continue
		}
		content = append(content, line)
	}
	flush()

	if sections[SectionTitle] == "" {
		delete(sections, SectionTitle)
	}
	return sections
}

// matchLabel reports whether line starts a recognized labeled section and
// returns the section plus any text following the label on the same line.
func matchLabel(line string) (Section, string, bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return 0, "", false
	}
	section, ok := sectionLabels[strings.TrimSpace(line[:idx])]
	if !ok {
		return 0, "", false
	}
	return section, strings.TrimSpace(line[idx+1:]), true
}

// Build renders sections back into commit message text. Sections appear in
// a fixed order regardless of map iteration order; empty sections are
// omitted. Build is the inverse of Parse for recognized sections with
// non-empty values.
func Build(sections Sections) string {
	var blocks []string
	for _, section := range buildOrder {
		text := strings.TrimSpace(sections[section])
		if text == "" {
			continue
		}
		if label := section.Label(); label != "" {
			if strings.Contains(text, "\n") {
				text = label + ":\n" + text
			} else {
				text = label + ": " + text
			}
		}
		blocks = append(blocks, text)
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// BuildBody renders the pull request description: every section except the
// title and the pull request link, which GitHub already displays.
func BuildBody(sections Sections) string {
	body := Sections{}
	for section, text := range sections {
		if section == SectionTitle || section == SectionPullRequest {
			continue
		}
		body[section] = text
	}
	if len(body) == 0 {
		return ""
	}
	return Build(body)
}

// BuildMergeBody renders the body of the squash merge commit. Unlike the
// pull request description it keeps the pull request link, so the landed
// commit records which review produced it. reviewedBy, when non-empty, is
// appended as a Reviewed By line.
func BuildMergeBody(sections Sections, reviewedBy []string) string {
	body := Sections{}
	for section, text := range sections {
		if section == SectionTitle {
			continue
		}
		body[section] = text
	}
	text := strings.TrimSuffix(Build(body), "\n")
	if len(reviewedBy) > 0 {
		names := append([]string(nil), reviewedBy...)
		sort.Strings(names)
		if text != "" {
			text += "\n\n"
		}
		text += fmt.Sprintf("Reviewed By: %s", strings.Join(names, ", "))
	}
	return text
}
