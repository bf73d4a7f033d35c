package mcp

import "encoding/json"

// ListSkillsInput is the input schema for the list_skills operation.
type ListSkillsInput struct {
	Offset int    `json:"offset,omitempty" jsonschema:"number of skills to skip, for pagination"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of skills to return, default 20"`
	Filter string `json:"filter,omitempty" jsonschema:"case-insensitive substring filter on skill names"`
}

// ListSkillsOutput is the paginated catalog listing returned by list_skills.
type ListSkillsOutput struct {
	Skills []SkillEntry `json:"skills"`
	Total  int          `json:"total" jsonschema:"total matching skills before pagination"`
	Offset int          `json:"offset"`
}

// SkillEntry is one skill with its instances and tools.
type SkillEntry struct {
	Name        string      `json:"name"`
	Runtime     string      `json:"runtime"`
	Description string      `json:"description,omitempty"`
	Instances   []string    `json:"instances,omitempty"`
	Tools       []ToolEntry `json:"tools,omitempty"`
}

// ToolEntry is one invocable tool, with the execution signature an agent
// would pass to execute.
type ToolEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Signature   string `json:"signature"`
}

// SearchSkillsInput is the input schema for the search_skills operation.
type SearchSkillsInput struct {
	Query string `json:"query" jsonschema:"what you want to do, in plain language"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of results, default 5"`
	Skill string `json:"skill,omitempty" jsonschema:"restrict results to one named skill"`
}

// SearchSkillsOutput is the structured result of one search_skills query:
// the query echo, ranked results, and total latency.
type SearchSkillsOutput struct {
	Query     string              `json:"query"`
	Results   []SearchResultEntry `json:"results"`
	Total     int                 `json:"total"`
	LatencyMS int64               `json:"latency_ms"`
}

// SearchResultEntry is one ranked hit with the execution signature the
// agent needs to invoke it.
type SearchResultEntry struct {
	ID        string  `json:"id"`
	Skill     string  `json:"skill"`
	Instance  string  `json:"instance"`
	Tool      string  `json:"tool"`
	Summary   string  `json:"summary,omitempty"`
	Signature string  `json:"signature,omitempty"`
	Score     float64 `json:"score"`
}

// ExecuteInput is the input schema for the execute operation.
type ExecuteInput struct {
	Skill     string         `json:"skill" jsonschema:"name of the skill to run"`
	Tool      string         `json:"tool" jsonschema:"name of the tool within the skill"`
	Instance  string         `json:"instance,omitempty" jsonschema:"instance name, default 'default'"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"tool arguments as a JSON object"`
}

// ExecuteOutput is the structured result of one execution.
type ExecuteOutput struct {
	Success    bool            `json:"success"`
	Output     json.RawMessage `json:"output,omitempty"`
	Truncated  bool            `json:"truncated,omitempty" jsonschema:"true when output exceeded the size cap and was cut"`
	DurationMS int64           `json:"duration_ms"`
}
