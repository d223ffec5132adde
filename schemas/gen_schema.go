package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

const draft = "https://json-schema.org/draft/2020-12/schema"

// JSONSchema represents a basic JSON Schema structure
type JSONSchema struct {
	Schema               string                `json:"$schema,omitempty"`
	Type                 string                `json:"type,omitempty"` // Use omitempty for interface{}
	Description          string                `json:"description,omitempty"`
	Title                string                `json:"title,omitempty"` // For named types
	Format               string                `json:"format,omitempty"`
	Enum                 []string              `json:"enum,omitempty"`
	Properties           map[string]JSONSchema `json:"properties,omitempty"`
	Items                *JSONSchema           `json:"items,omitempty"`                // For slices/arrays
	Required             []string              `json:"required,omitempty"`             // For objects
	AdditionalProperties *JSONSchema           `json:"additionalProperties,omitempty"` // For maps
}

func main() {
	pkgPattern := flag.String("pkg", "./export", "Package containing the type")
	typeName := flag.String("type", "Library", "Name of the struct type to generate a schema for")
	outName := flag.String("name", "", "Output file name without extension (defaults to the lowercased type name)")
	outDir := flag.String("out", "schemas/cached_schemas", "Output directory for the generated schema")
	flag.Parse()

	// --- Load the package ---
	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedImports |
			packages.NeedTypes |
			packages.NeedSyntax |
			packages.NeedTypesInfo,
		Fset: token.NewFileSet(),
	}

	log.Printf("Loading package info for pattern: %s", *pkgPattern)
	pkgs, err := packages.Load(cfg, *pkgPattern)
	if err != nil {
		log.Fatalf("Failed to load package(s) for pattern '%s': %v", *pkgPattern, err)
	}
	if len(pkgs) == 0 {
		log.Fatalf("No packages found for pattern: %s", *pkgPattern)
	}
	if len(pkgs) > 1 {
		log.Printf("Warning: Loaded multiple packages. Using the first one: %s", pkgs[0].PkgPath)
	}
	pkg := pkgs[0]

	var loadErrors []string
	for _, p := range pkgs {
		for _, err := range p.Errors {
			loadErrors = append(loadErrors, err.Error())
		}
	}
	if len(loadErrors) > 0 {
		log.Fatalf("Errors during package loading/type checking:\n%s", strings.Join(loadErrors, "\n"))
	}

	// --- Find the type object ---
	obj := pkg.Types.Scope().Lookup(*typeName)
	if obj == nil {
		log.Fatalf("Type '%s' not found in package '%s'", *typeName, pkg.PkgPath)
	}
	typeObj, ok := obj.(*types.TypeName)
	if !ok {
		log.Fatalf("Object '%s' found but is not a type", *typeName)
	}

	schema, err := generateSchemaForType(typeObj.Type())
	if err != nil {
		log.Fatalf("Failed to generate schema for '%s': %v", *typeName, err)
	}
	schema.Schema = draft
	schema.Description = typeDoc(pkg, typeObj)
	if schema.Description == "" {
		log.Printf("Warning: No documentation comment found for type '%s'", *typeName)
	}

	// --- Create output directory ---
	log.Printf("Ensuring output directory '%s' exists...", *outDir)
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Failed to create directory '%s': %v", *outDir, err)
	}

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal schema to JSON: %v", err)
	}

	name := *outName
	if name == "" {
		name = strings.ToLower(*typeName)
	}
	outputFile := filepath.Join(*outDir, name+".json")
	log.Printf("Writing schema to file '%s'...", outputFile)
	if err := os.WriteFile(outputFile, append(schemaJSON, '\n'), 0644); err != nil {
		log.Fatalf("Failed to write schema to file '%s': %v", outputFile, err)
	}

	log.Printf("Successfully generated schema for type '%s' and saved to '%s'", *typeName, outputFile)
}

// typeDoc returns the doc comment of a type declared in pkg.
func typeDoc(pkg *packages.Package, obj *types.TypeName) string {
	var doc string
	for _, file := range pkg.Syntax {
		ast.Inspect(file, func(n ast.Node) bool {
			gen, ok := n.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				return true
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || pkg.TypesInfo.Defs[ts.Name] != obj {
					continue
				}
				switch {
				case ts.Doc != nil:
					doc = ts.Doc.Text()
				case gen.Doc != nil:
					doc = gen.Doc.Text()
				}
				return false
			}
			return true
		})
	}
	return strings.TrimSpace(doc)
}

// generateSchemaForType recursively generates JSONSchema for a given Go type.
func generateSchemaForType(t types.Type) (JSONSchema, error) {
	named, isNamed := t.(*types.Named)
	if isNamed && named.Obj().Pkg() != nil && named.Obj().Pkg().Path() == "time" && named.Obj().Name() == "Time" {
		return JSONSchema{Type: "string", Format: "date-time"}, nil
	}

	switch typ := t.Underlying().(type) {
	case *types.Basic:
		schema := JSONSchema{}
		switch typ.Kind() {
		case types.Bool:
			schema.Type = "boolean"
		case types.Int, types.Int8, types.Int16, types.Int32, types.Int64,
			types.Uint, types.Uint8, types.Uint16, types.Uint32, types.Uint64:
			schema.Type = "integer"
		case types.Float32, types.Float64:
			schema.Type = "number"
		case types.String:
			schema.Type = "string"
		default:
			return JSONSchema{}, fmt.Errorf("unsupported basic type kind: %s", typ.String())
		}
		// Named basic types (type Role string) carry their declared constants as an enum.
		if isNamed {
			schema.Title = named.Obj().Name()
			schema.Enum = enumValues(named)
		}
		return schema, nil

	case *types.Slice:
		elemSchema, err := generateSchemaForType(typ.Elem())
		if err != nil {
			return JSONSchema{}, fmt.Errorf("failed to get schema for slice element type '%s': %w", typ.Elem().String(), err)
		}
		return JSONSchema{Type: "array", Items: &elemSchema}, nil

	case *types.Struct:
		schema := JSONSchema{
			Type:       "object",
			Properties: make(map[string]JSONSchema),
			Required:   []string{},
		}
		if isNamed {
			schema.Title = named.Obj().Name()
		}

		for i := 0; i < typ.NumFields(); i++ {
			field := typ.Field(i)
			if !field.Exported() {
				continue
			}

			fieldName := field.Name()
			jsonInfo := parseJsonTag(reflect.StructTag(typ.Tag(i)))
			if jsonInfo.Name == "-" {
				continue
			}
			if jsonInfo.Name != "" {
				fieldName = jsonInfo.Name
			}

			fieldSchema, err := generateSchemaForType(field.Type())
			if err != nil {
				log.Printf("Warning: Could not generate schema for struct field '%s.%s': %v. Skipping field.", schema.Title, field.Name(), err)
				continue
			}
			schema.Properties[fieldName] = fieldSchema

			// Determine if field is required based on `omitempty` tag
			if !jsonInfo.OmitEmpty {
				schema.Required = append(schema.Required, fieldName)
			}
		}
		sort.Strings(schema.Required)
		return schema, nil

	case *types.Pointer:
		// Nullability is expressed by the field's omitempty, not by the schema.
		return generateSchemaForType(typ.Elem())

	case *types.Map:
		keyType := typ.Key().Underlying()
		if b, ok := keyType.(*types.Basic); !ok || b.Kind() != types.String {
			log.Printf("Warning: Map key type '%s' is not string. JSON object keys must be strings.", keyType.String())
		}
		valueSchema, err := generateSchemaForType(typ.Elem())
		if err != nil {
			return JSONSchema{}, fmt.Errorf("failed to get schema for map value type '%s': %w", typ.Elem().String(), err)
		}
		return JSONSchema{Type: "object", AdditionalProperties: &valueSchema}, nil

	case *types.Interface:
		return JSONSchema{Description: "Any type"}, nil

	default:
		return JSONSchema{}, fmt.Errorf("unhandled type: %T (%s)", t, t.String())
	}
}

// enumValues collects the string constants declared with the named type.
func enumValues(named *types.Named) []string {
	pkg := named.Obj().Pkg()
	if pkg == nil {
		return nil
	}
	var values []string
	scope := pkg.Scope()
	for _, name := range scope.Names() {
		c, ok := scope.Lookup(name).(*types.Const)
		if !ok || !types.Identical(c.Type(), named) || c.Val().Kind() != constant.String {
			continue
		}
		values = append(values, constant.StringVal(c.Val()))
	}
	sort.Strings(values)
	return values
}

// --- Helper Functions ---

// jsonTagInfo holds parsed information from a `json:"..."` struct tag.
type jsonTagInfo struct {
	Name      string
	OmitEmpty bool
}

// parseJsonTag extracts relevant info from a struct field's JSON tag.
func parseJsonTag(tag reflect.StructTag) jsonTagInfo {
	jsonValue := tag.Get("json")
	if jsonValue == "" {
		return jsonTagInfo{}
	}

	parts := strings.Split(jsonValue, ",")
	info := jsonTagInfo{Name: parts[0]}
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			info.OmitEmpty = true
		}
	}
	return info
}
