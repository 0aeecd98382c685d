package orchestrator

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dsj7419/cleo/internal/model"
)

//go:embed protocols.yaml
var protocolsYAML []byte

// ProtocolKind names one conditional spawn protocol.
type ProtocolKind string

const (
	ProtocolResearch       ProtocolKind = "research"
	ProtocolDecomposition  ProtocolKind = "decomposition"
	ProtocolImplementation ProtocolKind = "implementation"
	ProtocolSpecification  ProtocolKind = "specification"
	ProtocolContribution   ProtocolKind = "contribution"
	ProtocolConsensus      ProtocolKind = "consensus"
	ProtocolRelease        ProtocolKind = "release"
)

// protocolSet is the parsed shape of protocols.yaml.
type protocolSet struct {
	Base      string                  `yaml:"base"`
	Protocols map[ProtocolKind]string `yaml:"protocols"`
}

var protocols = mustLoadProtocols()

func mustLoadProtocols() protocolSet {
	var set protocolSet
	if err := yaml.Unmarshal(protocolsYAML, &set); err != nil {
		panic(fmt.Sprintf("orchestrator: embedded protocols.yaml is malformed: %v", err))
	}
	for _, k := range []ProtocolKind{
		ProtocolResearch, ProtocolDecomposition, ProtocolImplementation,
		ProtocolSpecification, ProtocolContribution, ProtocolConsensus, ProtocolRelease,
	} {
		if set.Protocols[k] == "" {
			panic(fmt.Sprintf("orchestrator: embedded protocols.yaml lacks %q", k))
		}
	}
	return set
}

// keywordDispatch maps title/label keywords to a protocol; checked in order
// so the more specific kinds win over implementation.
var keywordDispatch = []struct {
	pattern *regexp.Regexp
	kind    ProtocolKind
}{
	{regexp.MustCompile(`(?i)\b(research|investigate|explore|survey)\b`), ProtocolResearch},
	{regexp.MustCompile(`(?i)\b(decompose|break\s*down|split)\b`), ProtocolDecomposition},
	{regexp.MustCompile(`(?i)\b(spec|specification|design\s+doc|rfc)\b`), ProtocolSpecification},
	{regexp.MustCompile(`(?i)\b(upstream|contribution|contribute)\b`), ProtocolContribution},
	{regexp.MustCompile(`(?i)\b(consensus|vote|decide|align)\b`), ProtocolConsensus},
	{regexp.MustCompile(`(?i)\b(release|ship|publish|deploy)\b`), ProtocolRelease},
}

// DispatchProtocol picks the conditional protocol for a task: epics always
// decompose, keyword matches on the title and labels come next, and plain
// tasks default to implementation.
func DispatchProtocol(t *model.Task) ProtocolKind {
	if t.Type == model.TypeEpic {
		return ProtocolDecomposition
	}
	haystack := t.Title + " " + strings.Join(t.Labels, " ")
	for _, d := range keywordDispatch {
		if d.pattern.MatchString(haystack) {
			return d.kind
		}
	}
	return ProtocolImplementation
}

// TokenResolution reports whether every template token in a composed prompt
// was resolved. Consumers must refuse to spawn when FullyResolved is false.
type TokenResolution struct {
	FullyResolved bool     `json:"fullyResolved"`
	Unresolved    []string `json:"unresolved,omitempty"`
}

var tokenPattern = regexp.MustCompile(`\{[a-zA-Z][a-zA-Z0-9]*\}`)

// ComposePrompt concatenates the base protocol and the task's conditional
// protocol, then resolves the template tokens. Composition is deterministic:
// the same task and date always yield the same prompt.
func ComposePrompt(t *model.Task, epicID string, date time.Time) (string, ProtocolKind, TokenResolution) {
	kind := DispatchProtocol(t)
	raw := protocols.Base + "\n" + protocols.Protocols[kind]

	replacer := strings.NewReplacer(
		"{taskId}", t.ID,
		"{epicId}", epicID,
		"{date}", date.Format("2006-01-02"),
	)
	prompt := replacer.Replace(raw)

	res := TokenResolution{FullyResolved: true}
	if leftover := tokenPattern.FindAllString(prompt, -1); len(leftover) > 0 {
		res.FullyResolved = false
		res.Unresolved = dedupe(leftover)
	}
	return prompt, kind, res
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
