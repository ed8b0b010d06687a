package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

const (
	maxProjectsPerRegion = 3
	maxUnitsPerProject   = 3
)

// FormatSearchResults renders a search result for the model: regions with
// total vs matching counts, up to three matching projects with up to three
// units each, instructions about identifiers and the raw payload.
func FormatSearchResults(r *model.SearchResult, q model.SearchQuery) string {
	if r == nil {
		return "No projects found matching your criteria."
	}
	if !r.Success {
		msg := r.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return "Error in search: " + msg
	}
	if len(r.Projects.Regions) == 0 {
		return "No projects found matching your criteria."
	}

	var b strings.Builder
	b.WriteString("SEARCH RESULTS\n\n")
	if q.NameQuery != nil {
		fmt.Fprintf(&b, "Searched for: %s\n", *q.NameQuery)
	}
	if q.SemanticQuery != nil {
		fmt.Fprintf(&b, "Query: %s\n", *q.SemanticQuery)
	}
	b.WriteString("\n---\n\n")

	for _, region := range r.Projects.Regions {
		name := region.RegionName
		if name == "" {
			name = "Unknown Region"
		}
		fmt.Fprintf(&b, "Region: %s\n", name)
		fmt.Fprintf(&b, "  - %d total projects available\n", region.Counts.TotalAssociatedProjects)
		fmt.Fprintf(&b, "  - %d match your criteria\n\n", region.Counts.ProjectsMatchingExactly)

		examples := region.ExactMatchExamples
		if len(examples) > maxProjectsPerRegion {
			examples = examples[:maxProjectsPerRegion]
		}
		if len(examples) > 0 {
			b.WriteString("Matching projects:\n")
		}
		for i, p := range examples {
			projectName := p.ProjectName
			if projectName == "" {
				projectName = "Unnamed Project"
			}
			fmt.Fprintf(&b, "  %d. %s (Project ID: %d)\n", i+1, projectName, p.ProjectID)
			fmt.Fprintf(&b, "     %d units match your criteria\n", p.UnitsMatchingParamsCount)

			units := p.UnitsExample
			if len(units) > maxUnitsPerProject {
				units = units[:maxUnitsPerProject]
			}
			if len(units) > 0 {
				b.WriteString("     Available units:\n")
			}
			for _, u := range units {
				fmt.Fprintf(&b, "       * %s\n", u.UnitName)
				fmt.Fprintf(&b, "         Unit ID: %s\n", u.UnitID)
				fmt.Fprintf(&b, "         %d bed %s\n", u.Bedrooms, u.UnitType)
				if u.Price > 0 {
					fmt.Fprintf(&b, "         Price: $%s\n", humanize.Comma(int64(math.Round(u.Price))))
				}
			}
			b.WriteString("\n")
		}
		b.WriteString("---\n\n")
	}

	b.WriteString("IMPORTANT FOR AGENT:\n")
	b.WriteString("- To send a project card use the numeric Project ID.\n")
	b.WriteString("- To send a unit card use the EXACT Unit ID shown above.\n")
	b.WriteString("- DO NOT invent or modify identifiers.\n\n")

	b.WriteString("Raw Data:\n```json\n")
	b.Write(prettyJSON(r.RawJSON()))
	b.WriteString("\n```")
	return b.String()
}

func prettyJSON(raw []byte) []byte {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return raw
	}
	return out.Bytes()
}
