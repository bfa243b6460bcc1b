package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// matrixNames maps ATT&CK reference sources to the matrix label written in the Matrices column
var matrixNames = map[string]string{
	"mitre-attack":        "Enterprise",
	"mitre-ics-attack":    "ICS",
	"mitre-mobile-attack": "Mobile",
}

// killChains maps a domain name to the kill chain its techniques reference
var killChains = map[string]string{
	"enterprise-attack": "mitre-attack",
	"mobile-attack":     "mitre-mobile-attack",
	"ics-attack":        "mitre-ics-attack",
}

// DefaultDomain is the ATT&CK domain used when BuildOptions leaves it empty
const DefaultDomain = "enterprise-attack"

type externalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
}

type killChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

type stixObject struct {
	Type               string              `json:"type"`
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Revoked            bool                `json:"revoked"`
	Deprecated         bool                `json:"x_mitre_deprecated"`
	ExternalReferences []externalReference `json:"external_references"`

	// x-mitre-tactic
	ShortName string `json:"x_mitre_shortname"`

	// attack-pattern
	KillChainPhases []killChainPhase `json:"kill_chain_phases"`
	Platforms       json.RawMessage  `json:"x_mitre_platforms"`
	IsSubtechnique  bool             `json:"x_mitre_is_subtechnique"`

	// x-mitre-matrix
	TacticRefs []string `json:"tactic_refs"`

	// relationship
	RelationshipType string `json:"relationship_type"`
	SourceRef        string `json:"source_ref"`
	TargetRef        string `json:"target_ref"`
}

type stixBundle struct {
	Type    string       `json:"type"`
	Objects []stixObject `json:"objects"`
}

func (o *stixObject) active() bool {
	return !o.Deprecated && !o.Revoked
}

// attackID returns the ATT&CK id and matrix label, preferring the known ATT&CK sources
func (o *stixObject) attackID() (string, string) {
	for _, ref := range o.ExternalReferences {
		if matrix, ok := matrixNames[ref.SourceName]; ok && ref.ExternalID != "" {
			return ref.ExternalID, matrix
		}
	}
	for _, ref := range o.ExternalReferences {
		if ref.ExternalID != "" {
			return ref.ExternalID, ""
		}
	}
	return "", ""
}

// platforms joins x_mitre_platforms; anything that is not a list of strings counts as none
func (o *stixObject) platforms() string {
	var plats []string
	if len(o.Platforms) == 0 || json.Unmarshal(o.Platforms, &plats) != nil {
		return ""
	}
	kept := plats[:0]
	for _, p := range plats {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.TrimSpace(strings.Join(kept, ", "))
}

func (o *stixObject) inPhase(killChain, phase string) bool {
	for _, kc := range o.KillChainPhases {
		if kc.KillChainName == killChain && kc.PhaseName == phase {
			return true
		}
	}
	return false
}

// complete reports whether the object carries an id, a description and platforms
func (o *stixObject) complete() bool {
	id, _ := o.attackID()
	return id != "" && cleanText(o.Description) != "" && o.platforms() != ""
}

func cleanText(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s))
}

// BuildOptions selects what BuildFromSTIX extracts
type BuildOptions struct {
	Domain string // enterprise-attack, mobile-attack or ics-attack
}

// BuildResult is the outcome of a catalog build
type BuildResult struct {
	Rows    []Technique
	Skipped int // techniques and sub-techniques lacking an id, description or platforms
}

// BuildFromSTIX extracts the active tactic/technique table from a STIX 2.x ATT&CK bundle.
// Each technique row is followed by its active sub-techniques, named "Technique: Sub-technique".
func BuildFromSTIX(r io.Reader, opts BuildOptions) (*BuildResult, error) {
	if opts.Domain == "" {
		opts.Domain = DefaultDomain
	}
	killChain, ok := killChains[opts.Domain]
	if !ok {
		return nil, fmt.Errorf("unknown ATT&CK domain: %s", opts.Domain)
	}

	var bundle stixBundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode STIX bundle: %w", err)
	}

	var (
		tactics    []*stixObject
		techniques []*stixObject
		byRef      = make(map[string]*stixObject)
		subsOf     = make(map[string][]*stixObject)
		tacticRank = make(map[string]int)
	)

	for i := range bundle.Objects {
		obj := &bundle.Objects[i]
		byRef[obj.ID] = obj
		switch obj.Type {
		case "x-mitre-tactic":
			if obj.active() {
				tactics = append(tactics, obj)
			}
		case "attack-pattern":
			if obj.active() && !obj.IsSubtechnique {
				techniques = append(techniques, obj)
			}
		case "x-mitre-matrix":
			if obj.active() {
				for rank, ref := range obj.TacticRefs {
					if _, seen := tacticRank[ref]; !seen {
						tacticRank[ref] = rank
					}
				}
			}
		}
	}

	for i := range bundle.Objects {
		rel := &bundle.Objects[i]
		if rel.Type != "relationship" || rel.RelationshipType != "subtechnique-of" || !rel.active() {
			continue
		}
		sub, ok := byRef[rel.SourceRef]
		if !ok || sub.Type != "attack-pattern" || !sub.active() {
			continue
		}
		subsOf[rel.TargetRef] = append(subsOf[rel.TargetRef], sub)
	}
	for parent := range subsOf {
		subs := subsOf[parent]
		sort.SliceStable(subs, func(i, j int) bool {
			a, _ := subs[i].attackID()
			b, _ := subs[j].attackID()
			return a < b
		})
	}

	// Matrix order when the bundle has a matrix, bundle order otherwise.
	if len(tacticRank) > 0 {
		sort.SliceStable(tactics, func(i, j int) bool {
			ri, oki := tacticRank[tactics[i].ID]
			rj, okj := tacticRank[tactics[j].ID]
			if oki != okj {
				return oki
			}
			return ri < rj
		})
	}

	result := &BuildResult{}
	for _, tactic := range tactics {
		if tactic.ShortName == "" {
			continue
		}
		tacticID, matrix := tactic.attackID()
		base := Technique{
			TacticName:        tactic.Name,
			TacticID:          tacticID,
			TacticDescription: cleanText(tactic.Description),
			Matrices:          matrix,
		}

		for _, tech := range techniques {
			if !tech.inPhase(killChain, tactic.ShortName) {
				continue
			}
			if !tech.complete() {
				result.Skipped++
				continue
			}
			result.Rows = append(result.Rows, base.with(tech, tech.Name))

			for _, sub := range subsOf[tech.ID] {
				if !sub.complete() {
					result.Skipped++
					continue
				}
				result.Rows = append(result.Rows, base.with(sub, tech.Name+": "+sub.Name))
			}
		}
	}

	return result, nil
}

func (t Technique) with(obj *stixObject, name string) Technique {
	id, _ := obj.attackID()
	t.TechniqueName = name
	t.TechniqueID = id
	t.TechniqueDescription = cleanText(obj.Description)
	t.Platform = obj.platforms()
	return t
}
