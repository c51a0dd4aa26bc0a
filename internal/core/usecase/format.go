package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bisq-network/support-agent/internal/core/domain"
)

// sourceMetaKey is the metadata field carrying the source type (faq, wiki).
const sourceMetaKey = "source"

// FAQ entries are curated answers and outrank wiki extracts at equal version
// priority.
var sourceWeights = map[string]int{
	domain.SourceFAQ:  2,
	domain.SourceWiki: 1,
}

var versionLabels = map[string]string{
	domain.VersionBisq2:   "Bisq 2",
	domain.VersionBisq1:   "Bisq 1",
	domain.VersionGeneral: "General",
}

// FormatDocuments renders documents into one prompt-ready context string.
// Documents are sorted by (source weight, version priority) descending, then
// emitted as one labeled block each.
func FormatDocuments(docs []domain.Document) string {
	if len(docs) == 0 {
		return ""
	}

	ordered := make([]domain.Document, len(docs))
	copy(ordered, docs)
	weights := versionWeights(domain.VersionBisq2)
	sort.SliceStable(ordered, func(i, j int) bool {
		si := sourceWeights[ordered[i].MetaString(sourceMetaKey)]
		sj := sourceWeights[ordered[j].MetaString(sourceMetaKey)]
		if si != sj {
			return si > sj
		}
		return weights[resolveVersion(ordered[i])] > weights[resolveVersion(ordered[j])]
	})

	var b strings.Builder
	for i, doc := range ordered {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := versionLabels[resolveVersion(doc)]
		if label == "" {
			label = "General"
		}
		source := doc.MetaString(sourceMetaKey)
		if source == "" {
			source = "unknown"
		}
		header := doc.MetaString("title")
		if section := doc.MetaString("section"); section != "" {
			header = fmt.Sprintf("%s / %s", header, section)
		}
		fmt.Fprintf(&b, "[%s | %s] %s\n%s", label, source, header, doc.Content)
	}
	return b.String()
}

// resolveVersion returns the document's version tag, sniffing the body for a
// version mention when the metadata only says general.
func resolveVersion(doc domain.Document) string {
	version := doc.MetaString(versionMetaKey)
	if version != domain.VersionGeneral && version != "" {
		return version
	}

	mentionsBisq2 := bisq2Pattern.MatchString(doc.Content)
	mentionsBisq1 := bisq1Pattern.MatchString(doc.Content)
	switch {
	case mentionsBisq2 && !mentionsBisq1:
		return domain.VersionBisq2
	case mentionsBisq1 && !mentionsBisq2:
		return domain.VersionBisq1
	default:
		return domain.VersionGeneral
	}
}

// DeduplicateSources collapses source maps by (title, section), keeping the
// first occurrence in order.
func DeduplicateSources(sources []map[string]any) []map[string]any {
	seen := make(map[dedupKey]struct{}, len(sources))
	out := make([]map[string]any, 0, len(sources))
	for _, src := range sources {
		key := dedupKey{
			title:   stringValue(src["title"]),
			section: stringValue(src["section"]),
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, src)
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
