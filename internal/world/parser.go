package world

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"cortex/internal/logging"
	"cortex/internal/types"
)

// minMethodChunkChars drops trivial method bodies from the chunk index.
const minMethodChunkChars = 50

// ParsedMethod is one method or function extracted from a source file.
type ParsedMethod struct {
	Name      string
	Class     string // empty for top-level functions
	Signature string
	Body      string // full method text including the signature
}

// ParsedClass is one class (or struct) with its members.
type ParsedClass struct {
	Name      string
	Signature string
	Fields    []string
	Methods   []ParsedMethod
}

// ParsedFile is the syntactic view of a single source file.
type ParsedFile struct {
	Path      string
	Package   string
	Classes   []ParsedClass
	Functions []ParsedMethod // top-level functions outside any class
}

// ChunkParser turns source files into class-overview and method chunks using
// tree-sitter grammars per language.
type ChunkParser struct {
	parser *sitter.Parser
}

// NewChunkParser creates a parser for the supported languages.
func NewChunkParser() *ChunkParser {
	return &ChunkParser{parser: sitter.NewParser()}
}

// Close releases the underlying tree-sitter parser.
func (p *ChunkParser) Close() {
	p.parser.Close()
}

// Parse parses one file. Unsupported extensions and syntax-level failures
// return an error; callers skip the file and continue the batch.
func (p *ChunkParser) Parse(path string, content []byte) (*ParsedFile, error) {
	var lang *sitter.Language
	switch filepath.Ext(path) {
	case ".go":
		lang = golang.GetLanguage()
	case ".java":
		lang = java.GetLanguage()
	case ".py":
		lang = python.GetLanguage()
	case ".js":
		lang = javascript.GetLanguage()
	default:
		return nil, fmt.Errorf("unsupported source extension: %s", filepath.Ext(path))
	}

	p.parser.SetLanguage(lang)
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse failed for %s: %w", path, err)
	}
	defer tree.Close()

	pf := &ParsedFile{Path: path}
	root := tree.RootNode()

	switch filepath.Ext(path) {
	case ".go":
		p.extractGo(root, content, pf)
	case ".java":
		p.extractJava(root, content, pf)
	case ".py":
		p.extractPython(root, content, pf)
	case ".js":
		p.extractJS(root, content, pf)
	}

	logging.WorldDebug("parsed %s: %d classes, %d functions", filepath.Base(path), len(pf.Classes), len(pf.Functions))
	return pf, nil
}

// signatureOf returns a node's text up to (not including) its body child.
func signatureOf(node *sitter.Node, body *sitter.Node, src []byte) string {
	if body == nil {
		return strings.TrimSpace(node.Content(src))
	}
	return strings.TrimSpace(string(src[node.StartByte():body.StartByte()]))
}

func (p *ChunkParser) extractGo(root *sitter.Node, src []byte, pf *ParsedFile) {
	classes := make(map[string]*ParsedClass)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "package_clause":
			if name := node.NamedChild(0); name != nil {
				pf.Package = name.Content(src)
			}
		case "type_declaration":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				spec := node.NamedChild(j)
				if spec.Type() != "type_spec" {
					continue
				}
				name := spec.ChildByFieldName("name")
				if name == nil {
					continue
				}
				cls := &ParsedClass{Name: name.Content(src)}
				if body := spec.ChildByFieldName("type"); body != nil && body.Type() == "struct_type" {
					cls.Signature = "type " + cls.Name + " struct"
					if fields := body.NamedChild(0); fields != nil {
						for k := 0; k < int(fields.NamedChildCount()); k++ {
							if fields.NamedChild(k).Type() == "field_declaration" {
								cls.Fields = append(cls.Fields, strings.TrimSpace(fields.NamedChild(k).Content(src)))
							}
						}
					}
				} else {
					cls.Signature = strings.TrimSpace(spec.Content(src))
				}
				classes[cls.Name] = cls
			}
		case "method_declaration":
			name := node.ChildByFieldName("name")
			if name == nil {
				continue
			}
			recv := receiverType(node.ChildByFieldName("receiver"), src)
			m := ParsedMethod{
				Name:      name.Content(src),
				Class:     recv,
				Signature: signatureOf(node, node.ChildByFieldName("body"), src),
				Body:      node.Content(src),
			}
			if cls, ok := classes[recv]; ok {
				cls.Methods = append(cls.Methods, m)
			} else {
				pf.Functions = append(pf.Functions, m)
			}
		case "function_declaration":
			name := node.ChildByFieldName("name")
			if name == nil {
				continue
			}
			pf.Functions = append(pf.Functions, ParsedMethod{
				Name:      name.Content(src),
				Signature: signatureOf(node, node.ChildByFieldName("body"), src),
				Body:      node.Content(src),
			})
		}
	}

	for _, cls := range classes {
		pf.Classes = append(pf.Classes, *cls)
	}
}

// receiverType extracts the bare type name from a Go method receiver.
func receiverType(recv *sitter.Node, src []byte) string {
	if recv == nil {
		return ""
	}
	text := recv.Content(src)
	text = strings.Trim(text, "()")
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimPrefix(parts[len(parts)-1], "*")
}

func (p *ChunkParser) extractJava(root *sitter.Node, src []byte, pf *ParsedFile) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "package_declaration":
			text := strings.TrimSpace(node.Content(src))
			text = strings.TrimPrefix(text, "package ")
			pf.Package = strings.TrimSuffix(text, ";")
		case "class_declaration", "interface_declaration":
			pf.Classes = append(pf.Classes, p.extractJavaClass(node, src))
		}
	}
}

func (p *ChunkParser) extractJavaClass(node *sitter.Node, src []byte) ParsedClass {
	cls := ParsedClass{}
	if name := node.ChildByFieldName("name"); name != nil {
		cls.Name = name.Content(src)
	}
	body := node.ChildByFieldName("body")
	cls.Signature = signatureOf(node, body, src)
	if body == nil {
		return cls
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "field_declaration":
			cls.Fields = append(cls.Fields, strings.TrimSpace(member.Content(src)))
		case "method_declaration", "constructor_declaration":
			name := member.ChildByFieldName("name")
			if name == nil {
				continue
			}
			cls.Methods = append(cls.Methods, ParsedMethod{
				Name:      name.Content(src),
				Class:     cls.Name,
				Signature: signatureOf(member, member.ChildByFieldName("body"), src),
				Body:      member.Content(src),
			})
		}
	}
	return cls
}

func (p *ChunkParser) extractPython(root *sitter.Node, src []byte, pf *ParsedFile) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "class_definition":
			cls := ParsedClass{}
			if name := node.ChildByFieldName("name"); name != nil {
				cls.Name = name.Content(src)
			}
			body := node.ChildByFieldName("body")
			cls.Signature = signatureOf(node, body, src)
			if body != nil {
				for j := 0; j < int(body.NamedChildCount()); j++ {
					member := body.NamedChild(j)
					if member.Type() != "function_definition" {
						continue
					}
					name := member.ChildByFieldName("name")
					if name == nil {
						continue
					}
					cls.Methods = append(cls.Methods, ParsedMethod{
						Name:      name.Content(src),
						Class:     cls.Name,
						Signature: signatureOf(member, member.ChildByFieldName("body"), src),
						Body:      member.Content(src),
					})
				}
			}
			pf.Classes = append(pf.Classes, cls)
		case "function_definition":
			name := node.ChildByFieldName("name")
			if name == nil {
				continue
			}
			pf.Functions = append(pf.Functions, ParsedMethod{
				Name:      name.Content(src),
				Signature: signatureOf(node, node.ChildByFieldName("body"), src),
				Body:      node.Content(src),
			})
		}
	}
}

func (p *ChunkParser) extractJS(root *sitter.Node, src []byte, pf *ParsedFile) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "class_declaration":
			cls := ParsedClass{}
			if name := node.ChildByFieldName("name"); name != nil {
				cls.Name = name.Content(src)
			}
			body := node.ChildByFieldName("body")
			cls.Signature = signatureOf(node, body, src)
			if body != nil {
				for j := 0; j < int(body.NamedChildCount()); j++ {
					member := body.NamedChild(j)
					if member.Type() != "method_definition" {
						continue
					}
					name := member.ChildByFieldName("name")
					if name == nil {
						continue
					}
					cls.Methods = append(cls.Methods, ParsedMethod{
						Name:      name.Content(src),
						Class:     cls.Name,
						Signature: signatureOf(member, member.ChildByFieldName("body"), src),
						Body:      member.Content(src),
					})
				}
			}
			pf.Classes = append(pf.Classes, cls)
		case "function_declaration":
			name := node.ChildByFieldName("name")
			if name == nil {
				continue
			}
			pf.Functions = append(pf.Functions, ParsedMethod{
				Name:      name.Content(src),
				Signature: signatureOf(node, node.ChildByFieldName("body"), src),
				Body:      node.Content(src),
			})
		}
	}
}

// =============================================================================
// DOCUMENT BUILDING
// =============================================================================

// BuildChunkDocuments converts a parsed file into class-overview and method
// chunks with the metadata the retriever filters on. Method bodies shorter
// than 50 characters are skipped.
func BuildChunkDocuments(pf *ParsedFile) []types.Document {
	filename := filepath.Base(pf.Path)
	var docs []types.Document

	for _, cls := range pf.Classes {
		var sb strings.Builder
		sb.WriteString(cls.Signature)
		sb.WriteString("\n")
		for _, f := range cls.Fields {
			sb.WriteString("  ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
		for _, m := range cls.Methods {
			sb.WriteString("  ")
			sb.WriteString(m.Signature)
			sb.WriteString("\n")
		}
		docs = append(docs, types.Document{
			Text: sb.String(),
			Metadata: map[string]string{
				types.MetaFilename:  filename,
				types.MetaChunkType: types.ChunkClassOverview,
				types.MetaClass:     cls.Name,
				types.MetaPackage:   pf.Package,
			},
		})
		docs = append(docs, methodDocuments(filename, pf.Package, cls.Methods)...)
	}
	docs = append(docs, methodDocuments(filename, pf.Package, pf.Functions)...)
	return docs
}

func methodDocuments(filename, pkg string, methods []ParsedMethod) []types.Document {
	var docs []types.Document
	for _, m := range methods {
		if len(m.Body) < minMethodChunkChars {
			continue
		}
		meta := map[string]string{
			types.MetaFilename:  filename,
			types.MetaChunkType: types.ChunkMethodImpl,
			types.MetaMethod:    m.Name,
			types.MetaPackage:   pkg,
		}
		if m.Class != "" {
			meta[types.MetaClass] = m.Class
		}
		docs = append(docs, types.Document{Text: m.Body, Metadata: meta})
	}
	return docs
}
