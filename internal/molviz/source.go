package molviz

import (
	"encoding/json"
	"fmt"
)

// SourceKind distinguishes preset selections from uploaded text.
type SourceKind int

const (
	SourcePreset SourceKind = iota
	SourceText
)

func (k SourceKind) String() string {
	switch k {
	case SourcePreset:
		return "preset"
	case SourceText:
		return "text"
	default:
		return "unknown"
	}
}

// MoleculeSource is what a session displays: a preset name or the text of
// an uploaded file. It is a value and is replaced, never mutated.
type MoleculeSource struct {
	Kind     SourceKind
	Preset   string
	FileName string
	Text     string
}

// PresetSource selects a catalogue molecule.
func PresetSource(name string) MoleculeSource {
	return MoleculeSource{Kind: SourcePreset, Preset: name}
}

// TextSource selects uploaded PDB text.
func TextSource(fileName, text string) MoleculeSource {
	return MoleculeSource{Kind: SourceText, FileName: fileName, Text: text}
}

// Label is a short human-readable name for logs and events.
func (s MoleculeSource) Label() string {
	if s.Kind == SourceText {
		return "upload:" + s.FileName
	}
	return "preset:" + s.Preset
}

// Resolve turns the source into a decoder reference. Text always wins over
// the catalogue, so an upload never touches a preset path.
func (s MoleculeSource) Resolve(cat *Catalogue) (Reference, error) {
	switch s.Kind {
	case SourceText:
		return Reference{Kind: RefInline, Name: s.FileName, Text: s.Text}, nil
	case SourcePreset:
		if cat == nil {
			return Reference{}, fmt.Errorf("%w: %s (no catalogue)", ErrUnknownPreset, s.Preset)
		}
		p, err := cat.Resolve(s.Preset)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Kind: RefPath, Name: s.Preset, Path: p}, nil
	default:
		return Reference{}, fmt.Errorf("unknown source kind %d", s.Kind)
	}
}

// MarshalJSON omits the uploaded text and reports its size instead.
func (s MoleculeSource) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind     string `json:"kind"`
		Preset   string `json:"preset,omitempty"`
		FileName string `json:"file_name,omitempty"`
		Size     int    `json:"size,omitempty"`
	}{
		Kind:     s.Kind.String(),
		Preset:   s.Preset,
		FileName: s.FileName,
		Size:     len(s.Text),
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the metadata written by MarshalJSON. Uploaded text
// is not part of the JSON form.
func (s *MoleculeSource) UnmarshalJSON(data []byte) error {
	var in struct {
		Kind     string `json:"kind"`
		Preset   string `json:"preset"`
		FileName string `json:"file_name"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "preset":
		*s = PresetSource(in.Preset)
	case "text":
		*s = MoleculeSource{Kind: SourceText, FileName: in.FileName}
	default:
		return fmt.Errorf("unknown source kind %q", in.Kind)
	}
	return nil
}
