package curriculum

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned when a curriculum document fails to parse or validate.
var ErrInvalidDocument = errors.New("invalid curriculum document")

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// LoadFile reads and validates a curriculum document. ".yaml" and ".yml"
// files are parsed as YAML, everything else as JSON.
func LoadFile(path string) ([]Subject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading curriculum: %w", err)
	}
	return Parse(data, isYAML(path))
}

// Parse validates a curriculum document against the schema and the id
// uniqueness rules, then decodes it.
func Parse(data []byte, yamlDoc bool) ([]Subject, error) {
	raw := data
	if yamlDoc {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %w", ErrInvalidDocument, err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: convert yaml: %w", ErrInvalidDocument, err)
		}
		raw = converted
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
	}

	var subjects []Subject
	if err := json.Unmarshal(raw, &subjects); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := checkDocument(subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// checkDocument enforces unique subject ids, unique topic ids per subject,
// globally unique subtopic ids and valid baseline progress values.
func checkDocument(subjects []Subject) error {
	subjectSeen := make(map[string]bool, len(subjects))
	subtopicSeen := make(map[string]Address)

	for _, s := range subjects {
		if subjectSeen[s.ID] {
			return fmt.Errorf("%w: duplicate subject id %q", ErrInvalidDocument, s.ID)
		}
		subjectSeen[s.ID] = true

		topicSeen := make(map[string]bool, len(s.Topics))
		for _, t := range s.Topics {
			if topicSeen[t.ID] {
				return fmt.Errorf("%w: duplicate topic id %q in subject %q", ErrInvalidDocument, t.ID, s.ID)
			}
			topicSeen[t.ID] = true

			for _, st := range t.Subtopics {
				here := Address{SubjectID: s.ID, TopicID: t.ID, SubtopicID: st.ID}
				if prev, dup := subtopicSeen[st.ID]; dup {
					return fmt.Errorf("%w: duplicate subtopic id %q at %s/%s and %s/%s",
						ErrInvalidDocument, st.ID, prev.SubjectID, prev.TopicID, here.SubjectID, here.TopicID)
				}
				subtopicSeen[st.ID] = here

				if st.Progress != "" && !st.Progress.Valid() {
					return fmt.Errorf("%w: subtopic %q has progress %q", ErrInvalidDocument, st.ID, st.Progress)
				}
			}
		}
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
