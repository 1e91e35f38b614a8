package sifter

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogEntry is one product in the catalog file.
type catalogEntry struct {
	Artist string `yaml:"artist"`
	Title  string `yaml:"title"`
	Added  string `yaml:"added"`
	URL    string `yaml:"url"`
}

type catalogFile struct {
	ProductMapping map[string]catalogEntry `yaml:"product_mapping"`
}

// ReadCatalog parses a product mapping whose keys are "p<id>". Keys that do
// not follow that form are skipped. The result is ordered by id.
func ReadCatalog(r io.Reader) ([]Design, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var doc catalogFile
	if err := yaml.Unmarshal(stripDirectives(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	designs := make([]Design, 0, len(doc.ProductMapping))
	for key, entry := range doc.ProductMapping {
		id, ok := productID(key)
		if !ok {
			continue
		}
		designs = append(designs, Design{
			ID:        id,
			Title:     entry.Title,
			Artist:    entry.Artist,
			ArtistURL: entry.URL,
			DateAdded: entry.Added,
		})
	}
	sort.Slice(designs, func(i, j int) bool { return designs[i].ID < designs[j].ID })
	return designs, nil
}

func ReadCatalogFile(path string) ([]Design, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return ReadCatalog(f)
}

// stripDirectives drops a leading "%YAML" line. Catalogs written by older
// emitters declare version 1.0, which the decoder rejects.
func stripDirectives(raw []byte) []byte {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), len(raw)+1)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first && strings.HasPrefix(strings.TrimSpace(line), "%YAML") {
			first = false
			continue
		}
		first = false
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

func productID(key string) (int, bool) {
	if !strings.HasPrefix(key, "p") {
		return 0, false
	}
	id, err := strconv.Atoi(key[1:])
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
