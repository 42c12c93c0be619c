package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage-cli/internal/model"
)

// ancestorJSON holds the structured columns of a position, encoded.
type ancestorJSON struct {
	sources     []byte
	evidence    []byte
	search      []byte
	corrections []byte
}

func marshalAncestorJSON(a *model.Ancestor) (ancestorJSON, error) {
	var out ancestorJSON
	var err error
	enc := func(v any) []byte {
		if err != nil {
			return nil
		}
		var b []byte
		b, err = json.Marshal(v)
		return b
	}
	out.sources = enc(nonNil(a.Sources))
	out.evidence = enc(nonNil(a.EvidenceChain))
	out.search = enc(nonNil(a.SearchLog))
	out.corrections = enc(nonNil(a.CorrectionsLog))
	return out, err
}

func unmarshalAncestorJSON(a *model.Ancestor, sources, evidence, search, corrections []byte) error {
	for _, f := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"sources", sources, &a.Sources},
		{"evidence_chain", evidence, &a.EvidenceChain},
		{"search_log", search, &a.SearchLog},
		{"corrections_log", corrections, &a.CorrectionsLog},
	} {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return eris.Wrapf(err, "decode %s", f.name)
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
