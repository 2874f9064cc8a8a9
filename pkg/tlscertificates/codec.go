/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tlscertificates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/numtide/tls-relation-operator/pkg/relation"
)

// Wire keys under which the documents travel in the databags.
const (
	requirerKey = "certificate_signing_requests"
	providerKey = "certificates"
)

//go:embed schemas/requirer.json schemas/provider.json
var schemaFiles embed.FS

var (
	requirerSchema = mustCompileSchema("schemas/requirer.json")
	providerSchema = mustCompileSchema("schemas/provider.json")
)

func mustCompileSchema(path string) *jsonschema.Schema {
	raw, err := schemaFiles.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("reading embedded schema %s: %v", path, err))
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parsing embedded schema %s: %v", path, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(path, doc); err != nil {
		panic(fmt.Sprintf("adding schema resource %s: %v", path, err))
	}
	schema, err := compiler.Compile(path)
	if err != nil {
		panic(fmt.Sprintf("compiling schema %s: %v", path, err))
	}
	return schema
}

// DecodeDatabag lowers a flat databag into a JSON document. Every value is
// parsed as JSON; values that do not parse are kept as their raw string,
// which keeps plain-string fields written by older peers readable.
func DecodeDatabag(raw map[string]string) map[string]any {
	doc := make(map[string]any, len(raw))
	for key, value := range raw {
		parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(value))
		if err != nil {
			doc[key] = value
			continue
		}
		doc[key] = parsed
	}
	return doc
}

// ValidateRequirer reports whether a decoded databag is a structurally valid
// requirer document. Unknown properties are allowed.
func ValidateRequirer(doc map[string]any) bool {
	return requirerSchema.Validate(any(doc)) == nil
}

// ValidateProvider reports whether a decoded databag is a structurally valid
// provider document. Unknown properties are allowed.
func ValidateProvider(doc map[string]any) bool {
	return providerSchema.Validate(any(doc)) == nil
}

// decodeRequirerDocument validates and decodes a remote unit's databag. The
// second return is false when the databag does not hold actionable data yet.
func decodeRequirerDocument(bag relation.Databag) (RequirerDocument, bool) {
	raw := bag.Snapshot()
	if !ValidateRequirer(DecodeDatabag(raw)) {
		return RequirerDocument{}, false
	}
	var doc RequirerDocument
	if err := json.Unmarshal([]byte(raw[requirerKey]), &doc.CertificateSigningRequests); err != nil {
		return RequirerDocument{}, false
	}
	return doc, true
}

// decodeProviderDocument validates and decodes the remote application's
// databag. The second return is false when the databag does not hold
// actionable data yet.
func decodeProviderDocument(bag relation.Databag) (ProviderDocument, bool) {
	raw := bag.Snapshot()
	if !ValidateProvider(DecodeDatabag(raw)) {
		return ProviderDocument{}, false
	}
	var doc ProviderDocument
	if err := json.Unmarshal([]byte(raw[providerKey]), &doc.Certificates); err != nil {
		return ProviderDocument{}, false
	}
	return doc, true
}

// readRequirerDocument reads the local unit's own document without schema
// validation. A missing or malformed key reads as an empty document.
func readRequirerDocument(bag relation.Databag) RequirerDocument {
	var doc RequirerDocument
	value, ok := bag.Get(requirerKey)
	if !ok {
		return doc
	}
	if err := json.Unmarshal([]byte(value), &doc.CertificateSigningRequests); err != nil {
		return RequirerDocument{}
	}
	return doc
}

// readProviderDocument reads the provider's own document without schema
// validation. A missing or malformed key reads as an empty document.
func readProviderDocument(bag relation.Databag) ProviderDocument {
	var doc ProviderDocument
	value, ok := bag.Get(providerKey)
	if !ok {
		return doc
	}
	if err := json.Unmarshal([]byte(value), &doc.Certificates); err != nil {
		return ProviderDocument{}
	}
	return doc
}

func writeRequirerDocument(bag relation.Databag, doc RequirerDocument) {
	entries := doc.CertificateSigningRequests
	if entries == nil {
		entries = []CSREntry{}
	}
	encoded, err := json.Marshal(entries)
	if err != nil {
		// []CSREntry cannot fail to marshal.
		panic(err)
	}
	bag.Set(requirerKey, string(encoded))
}

func writeProviderDocument(bag relation.Databag, doc ProviderDocument) {
	records := doc.Certificates
	if records == nil {
		records = []CertificateRecord{}
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		// []CertificateRecord cannot fail to marshal.
		panic(err)
	}
	bag.Set(providerKey, string(encoded))
}
