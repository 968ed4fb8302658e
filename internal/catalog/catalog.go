package catalog

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/gema-appgrader/internal/models"
)

//go:embed templates.yaml
var defaultTemplates []byte

//go:embed catalog.schema.json
var catalogSchema []byte

const (
	schemaURL     = "mem://catalog.schema.json"
	taskIDHashLen = 5
	bucketLayout  = "2006-01-02-15"
)

// ErrUnknownFamily is returned when a task family is not registered in the catalog.
var ErrUnknownFamily = errors.New("unknown task family")

// Template is one brief offered to a student together with its checklist.
type Template struct {
	Brief       string              `yaml:"brief" json:"brief"`
	Checks      []string            `yaml:"checks" json:"checks"`
	Attachments []models.Attachment `yaml:"attachments" json:"attachments"`
}

// Family groups the round-1 template with the round-2 candidates that build on it.
type Family struct {
	ID     string     `yaml:"id" json:"id"`
	Round1 Template   `yaml:"round1" json:"round1"`
	Round2 []Template `yaml:"round2" json:"round2"`
}

type document struct {
	Families []Family `yaml:"families"`
}

// Catalog is an immutable, ordered set of task families.
type Catalog struct {
	families []Family
	index    map[string]int
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(defaultTemplates)
	})
	return defaultCatalog, defaultErr
}

// Load parses a YAML catalog and validates its shape before use.
func Load(data []byte) (*Catalog, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	catalog := &Catalog{index: make(map[string]int, len(doc.Families))}
	for _, family := range doc.Families {
		if _, exists := catalog.index[family.ID]; exists {
			return nil, fmt.Errorf("duplicate task family %q", family.ID)
		}
		if family.Round1.Attachments == nil {
			family.Round1.Attachments = []models.Attachment{}
		}
		catalog.index[family.ID] = len(catalog.families)
		catalog.families = append(catalog.families, family)
	}
	return catalog, nil
}

func validate(raw interface{}) error {
	// The schema validator works on JSON-shaped values, so normalise the YAML tree first.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("normalise catalog: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return fmt.Errorf("normalise catalog: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(catalogSchema)); err != nil {
		return fmt.Errorf("load catalog schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("compile catalog schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	return nil
}

// Families lists the registered family ids in file order.
func (c *Catalog) Families() []string {
	ids := make([]string, 0, len(c.families))
	for _, family := range c.families {
		ids = append(ids, family.ID)
	}
	return ids
}

// TemplatesFor returns the round-1 template and round-2 candidates for a family.
func (c *Catalog) TemplatesFor(familyID string) (Family, error) {
	idx, ok := c.index[familyID]
	if !ok {
		return Family{}, fmt.Errorf("%w: %s", ErrUnknownFamily, familyID)
	}
	return c.families[idx], nil
}

// SelectRound1 picks a family deterministically for a student within a time bucket.
func (c *Catalog) SelectRound1(email, bucket string) Family {
	sum := sha256.Sum256([]byte(email + bucket))
	n := binary.BigEndian.Uint64(sum[:8])
	return c.families[n%uint64(len(c.families))]
}

// HourBucket is the coarse clock bucket used for round-1 selection.
func HourBucket(t time.Time) string {
	return t.UTC().Format(bucketLayout)
}

// TaskID derives a stable identifier from the family and the issued content.
func TaskID(familyID, brief string, attachments []models.Attachment) string {
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	encoded, _ := json.Marshal(attachments)

	hasher := sha256.New()
	hasher.Write([]byte(brief))
	hasher.Write(encoded)
	return familyID + "-" + hex.EncodeToString(hasher.Sum(nil))[:taskIDHashLen]
}

// FamilyFromTaskID strips the trailing content hash produced by TaskID.
func FamilyFromTaskID(taskID string) string {
	idx := strings.LastIndex(taskID, "-")
	if idx <= 0 {
		return taskID
	}
	suffix := taskID[idx+1:]
	if len(suffix) != taskIDHashLen {
		return taskID
	}
	if !isHex(suffix) {
		return taskID
	}
	return taskID[:idx]
}

func isHex(value string) bool {
	for _, r := range value {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
