package artifact

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/arcadian-systems/anvil/contract"
	"github.com/arcadian-systems/anvil/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ManifestName is the file the code generator writes next to the built
// artifact to declare its calling convention.
const ManifestName = "para_info.json"

type manifestEntry struct {
	Name  string  `json:"name"`
	Shape []int64 `json:"shape"`
	Dtype string  `json:"dtype"`
}

type manifest struct {
	Inputs  []manifestEntry `json:"inputs"`
	Outputs []manifestEntry `json:"outputs"`
}

// LoadManifest reads an artifact's declared contract from its manifest file.
func LoadManifest(path string) (contract.Contract, error) {
	content, err := util.ReadFileBytes(path)
	if err != nil {
		return contract.Contract{}, fmt.Errorf("reading artifact manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(content, &m); err != nil {
		return contract.Contract{}, fmt.Errorf("parsing artifact manifest %s: %w", path, err)
	}

	declared := contract.Contract{
		Inputs:  fromManifestEntries(m.Inputs),
		Outputs: fromManifestEntries(m.Outputs),
	}
	if err := declared.Validate(); err != nil {
		return contract.Contract{}, fmt.Errorf("artifact manifest %s: %w", path, err)
	}
	return declared, nil
}

// WriteManifest writes a declared contract in the manifest layout. Used by
// tooling and tests that stand in for the code generator.
func WriteManifest(path string, declared contract.Contract) error {
	m := manifest{
		Inputs:  toManifestEntries(declared.Inputs),
		Outputs: toManifestEntries(declared.Outputs),
	}
	encoded, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileBytes(path, encoded)
}

func fromManifestEntries(entries []manifestEntry) []contract.Descriptor {
	descriptors := make([]contract.Descriptor, len(entries))
	for i, e := range entries {
		descriptors[i] = contract.Descriptor{
			Name:  e.Name,
			Shape: e.Shape,
			Dtype: contract.Dtype(e.Dtype),
		}
	}
	return descriptors
}

func toManifestEntries(descriptors []contract.Descriptor) []manifestEntry {
	entries := make([]manifestEntry, len(descriptors))
	for i, d := range descriptors {
		entries[i] = manifestEntry{
			Name:  d.Name,
			Shape: d.Shape,
			Dtype: string(d.Dtype),
		}
	}
	return entries
}
