package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/skillrunner/skillrunner/internal/manifest"
)

// RegisterResources publishes one documentation resource per installed
// skill plus a catalog stats resource, so agents can read full tool
// documentation without spending a search_skills call. Call after the
// server is created and before serving.
func (s *Server) RegisterResources(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.skills.Manifest()
	if m == nil {
		return fmt.Errorf("no manifest is loaded")
	}

	for _, sk := range m.Skills {
		s.registerSkillResource(sk)
	}
	s.registerCatalogStatsResource()

	s.logger.Info("registered resources", "count", len(m.Skills)+1)
	_ = ctx
	return nil
}

// registerSkillResource publishes one skill's full documentation under
// skill://{name}. Instance configuration is listed by key name only —
// values may embed secret references and never leave the manifest layer.
func (s *Server) registerSkillResource(sk *manifest.Skill) {
	uri := "skill://" + sk.Name
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        sk.Name,
			URI:         uri,
			Description: sk.Description,
			MIMEType:    "text/markdown",
		},
		s.makeSkillHandler(sk.Name),
	)
}

func (s *Server) makeSkillHandler(skillName string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := "skill://" + skillName
		m := s.skills.Manifest()
		if m == nil {
			return nil, NewResourceNotFoundError(uri)
		}
		sk, ok := m.Skills[skillName]
		if !ok {
			return nil, NewResourceNotFoundError(uri)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      "skill://" + skillName,
					MIMEType: "text/markdown",
					Text:     skillDocument(sk),
				},
			},
		}, nil
	}
}

// skillDocument renders one skill's complete agent-facing documentation.
func skillDocument(sk *manifest.Skill) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", sk.Name))
	if sk.Description != "" {
		sb.WriteString(sk.Description)
		sb.WriteString("\n\n")
	}
	sb.WriteString(fmt.Sprintf("Runtime: `%s`\n\n", sk.Runtime))

	if len(sk.Tools) > 0 {
		sb.WriteString("## Tools\n\n")
		for _, t := range sk.Tools {
			sb.WriteString(fmt.Sprintf("### %s\n\n", t.Name))
			if t.Description != "" {
				sb.WriteString(t.Description)
				sb.WriteString("\n\n")
			}
			for _, p := range t.Parameters {
				req := ""
				if p.Required {
					req = " (required)"
				}
				sb.WriteString(fmt.Sprintf("- `%s` %s%s", p.Name, p.Type, req))
				if len(p.Enum) > 0 {
					sb.WriteString(fmt.Sprintf(" [one of: %s]", strings.Join(p.Enum, ", ")))
				}
				if p.Default != nil {
					sb.WriteString(fmt.Sprintf(" (default: %v)", p.Default))
				}
				if p.Description != "" {
					sb.WriteString(" — ")
					sb.WriteString(p.Description)
				}
				sb.WriteString("\n")
			}
			for _, ex := range t.Examples {
				sb.WriteString(fmt.Sprintf("\nExample: `%s`\n", ex))
			}
			sb.WriteString("\n")
		}
	}

	if len(sk.Instances) > 0 {
		sb.WriteString("## Instances\n\n")
		for name, inst := range sk.Instances {
			sb.WriteString(fmt.Sprintf("- `%s`", name))
			if len(inst.Config) > 0 {
				keys := make([]string, 0, len(inst.Config))
				for k := range inst.Config {
					keys = append(keys, k)
				}
				sb.WriteString(fmt.Sprintf(" (config keys: %s)", strings.Join(keys, ", ")))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// CatalogStatsOutput is the JSON structure of the catalog_stats resource.
type CatalogStatsOutput struct {
	SkillCount    int           `json:"skill_count"`
	ToolCount     int           `json:"tool_count"`
	IndexedCount  int           `json:"indexed_count"`
	Embeddings    EmbeddingInfo `json:"embeddings"`
}

// EmbeddingInfo reports which embedder is active so AI clients can adjust
// their search strategy when only the static fallback is available.
type EmbeddingInfo struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	Dimensions      int    `json:"dimensions"`
	SemanticQuality string `json:"semantic_quality"`
}

func (s *Server) registerCatalogStatsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "catalog_stats",
			URI:         "skillrunner://catalog_stats",
			Description: "Catalog size and active embedder state",
			MIMEType:    "application/json",
		},
		s.makeCatalogStatsHandler(),
	)
}

func (s *Server) makeCatalogStatsHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		out := CatalogStatsOutput{}

		if m := s.skills.Manifest(); m != nil {
			out.SkillCount = len(m.Skills)
			for _, sk := range m.Skills {
				out.ToolCount += len(sk.Tools)
			}
		}
		if ids, err := s.metadata.AllDocumentIDs(ctx); err == nil {
			out.IndexedCount = len(ids)
		}
		if s.embedder != nil {
			model := s.embedder.ModelName()
			out.Embeddings = EmbeddingInfo{
				Provider:        s.config.Embeddings.Provider,
				Model:           model,
				Dimensions:      s.embedder.Dimensions(),
				SemanticQuality: semanticQuality(model),
			}
		} else {
			out.Embeddings = EmbeddingInfo{Provider: "none", SemanticQuality: "unavailable"}
		}

		content, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      "skillrunner://catalog_stats",
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}

// semanticQuality maps the active embedder to the quality signal agents
// use to decide between search_skills and list_skills.
func semanticQuality(model string) string {
	if strings.HasPrefix(model, "static") {
		return "low"
	}
	return "high"
}

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	QueryTypeCounts     map[string]int64    `json:"query_type_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	TimePeriod    string  `json:"time_period"`
	ZeroResultPct float64 `json:"zero_result_pct"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         "skillrunner://query_metrics",
			Description: "Query pattern telemetry for search optimization",
			MIMEType:    "application/json",
		},
		s.makeQueryMetricsHandler(),
	)
}

// makeQueryMetricsHandler creates a handler for the query_metrics resource.
func (s *Server) makeQueryMetricsHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		s.mu.RLock()
		metrics := s.metrics
		s.mu.RUnlock()

		if metrics == nil {
			return nil, NewInvalidParamsError("query metrics not available")
		}

		snapshot := metrics.Snapshot()

		output := QueryMetricsOutput{
			Summary: QueryMetricsSummary{
				TotalQueries:  snapshot.TotalQueries,
				TimePeriod:    "session",
				ZeroResultPct: snapshot.ZeroResultPercentage(),
			},
			QueryTypeCounts:     make(map[string]int64),
			TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
			ZeroResultQueries:   snapshot.ZeroResultQueries,
			LatencyDistribution: make(map[string]int64),
		}

		for qt, count := range snapshot.QueryTypeCounts {
			output.QueryTypeCounts[string(qt)] = count
		}
		for _, tc := range snapshot.TopTerms {
			output.TopTerms = append(output.TopTerms, QueryTermCount{
				Term:  tc.Term,
				Count: tc.Count,
			})
		}
		for bucket, count := range snapshot.LatencyDistribution {
			output.LatencyDistribution[string(bucket)] = count
		}

		content, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      "skillrunner://query_metrics",
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}
