package keywords

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"golang.org/x/mod/modfile"
)

// readManifests collects declared names and keywords from whichever
// package manifests the project carries. Unreadable or malformed
// manifests contribute nothing; this is a hint source, not a parser
// with opinions. A requirements scan that fails mid-file still keeps
// the lines read so far, with the error logged rather than dropped.
func (b *Builder) readManifests(ctx context.Context, root string) []string {
	var kws []string
	kws = append(kws, readPackageJSON(filepath.Join(root, "package.json"))...)
	kws = append(kws, readGoMod(filepath.Join(root, "go.mod"))...)
	kws = append(kws, readCargoToml(filepath.Join(root, "Cargo.toml"))...)
	kws = append(kws, readPyprojectToml(filepath.Join(root, "pyproject.toml"))...)
	reqPath := filepath.Join(root, "requirements.txt")
	reqs, err := readRequirements(reqPath)
	if err != nil {
		b.log.Debug(ctx, "requirements scan truncated",
			zap.String("path", reqPath), zap.Error(err))
	}
	kws = append(kws, reqs...)
	return kws
}

func readPackageJSON(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var pkg struct {
		Name     string   `json:"name"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}
	kws := append([]string{"javascript"}, splitIdentifier(scopelessName(pkg.Name))...)
	for _, kw := range pkg.Keywords {
		kws = append(kws, strings.ToLower(strings.TrimSpace(kw)))
	}
	return kws
}

// scopelessName strips an npm scope: @org/tool -> tool.
func scopelessName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func readGoMod(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	f, err := modfile.ParseLax(path, data, nil)
	if err != nil || f.Module == nil {
		return nil
	}
	kws := []string{"go"}
	kws = append(kws, splitIdentifier(lastPathElement(f.Module.Mod.Path))...)
	for _, req := range f.Require {
		if req.Indirect {
			continue
		}
		kws = append(kws, lastPathElement(req.Mod.Path))
	}
	return kws
}

func readCargoToml(path string) []string {
	var manifest struct {
		Package struct {
			Name     string   `toml:"name"`
			Keywords []string `toml:"keywords"`
		} `toml:"package"`
	}
	if _, err := toml.DecodeFile(path, &manifest); err != nil {
		return nil
	}
	kws := append([]string{"rust"}, splitIdentifier(manifest.Package.Name)...)
	for _, kw := range manifest.Package.Keywords {
		kws = append(kws, strings.ToLower(strings.TrimSpace(kw)))
	}
	return kws
}

func readPyprojectToml(path string) []string {
	var manifest struct {
		Project struct {
			Name     string   `toml:"name"`
			Keywords []string `toml:"keywords"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name     string   `toml:"name"`
				Keywords []string `toml:"keywords"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.DecodeFile(path, &manifest); err != nil {
		return nil
	}
	name := manifest.Project.Name
	keywords := manifest.Project.Keywords
	if name == "" {
		name = manifest.Tool.Poetry.Name
		keywords = manifest.Tool.Poetry.Keywords
	}
	if name == "" && len(keywords) == 0 {
		return nil
	}
	kws := append([]string{"python"}, splitIdentifier(name)...)
	for _, kw := range keywords {
		kws = append(kws, strings.ToLower(strings.TrimSpace(kw)))
	}
	return kws
}

// readRequirements returns what it collected before any scan error, so
// an oversized line or a mid-file read failure costs the tail of the
// list, not the whole file.
func readRequirements(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer file.Close()

	kws := []string{"python"}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		// Cut version specifiers and extras: pkg[extra]>=1.0 -> pkg.
		if i := strings.IndexAny(line, "[=<>!~; "); i >= 0 {
			line = line[:i]
		}
		if line != "" {
			kws = append(kws, strings.ToLower(line))
		}
	}
	return kws, scanner.Err()
}

// readDocTech scans README.md and CLAUDE.md headings for known
// technology names.
func readDocTech(root string) []string {
	var kws []string
	for _, name := range []string{"README.md", "CLAUDE.md"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		kws = append(kws, headingTech(string(data))...)
	}
	return kws
}

func headingTech(doc string) []string {
	var kws []string
	for _, line := range strings.Split(doc, "\n") {
		if !strings.HasPrefix(line, "#") {
			continue
		}
		words := Tokenize(line)
		for _, word := range words {
			for _, tech := range techVocabulary {
				if word == tech {
					kws = append(kws, tech)
				}
			}
		}
	}
	return kws
}
