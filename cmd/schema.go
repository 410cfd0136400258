package cmd

import (
	"errors"
	"log"
	"os"

	"github.com/kayz/scribe/internal/schema"
)

// loadBaseSchema loads and validates the base schema. A missing file yields
// an empty schema so templates can bring their own. Any other failure
// returns a reason that disables template selection.
func loadBaseSchema(path string) (*schema.Schema, string) {
	if path == "" {
		return schema.New(), ""
	}
	s, err := schema.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("[Schema] No base schema at %s, using an empty one", path)
		return schema.New(), ""
	}
	if err == nil {
		err = schema.Validate(s)
	}
	if err != nil {
		log.Printf("[Schema] Base schema unusable: %v", err)
		return schema.New(), err.Error()
	}
	log.Printf("[Schema] Loaded %s (%d entities, %d rules)", path, len(s.Entities), len(s.Rules))
	return s, ""
}
