package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/schemat-io/schemat/internal/catalog"
	"github.com/schemat-io/schemat/internal/jsonx"
	"github.com/schemat-io/schemat/internal/object"
	"github.com/schemat-io/schemat/internal/schematerr"
	"github.com/schemat-io/schemat/internal/storage"
)

// CategoryIndex resolves a record's classpath tag to the Category/Class
// pair that interprets it: the lookup step between "decode the stored
// JSONX record" and "hand object.Object a Category" (spec.md §4.F).
// A deliberate simplification of a fully storage-backed
// category-of-categories bootstrap, where a category's own record would
// be loaded the same way as any other object; see DESIGN.md.
type CategoryIndex interface {
	Category(classpath string) (object.Category, *object.Class, bool)
}

type categoryEntry struct {
	category object.Category
	class    *object.Class
}

// MapCategoryIndex is the map-backed CategoryIndex a deployment's
// bootstrap code populates with its known categories.
type MapCategoryIndex struct {
	entries map[string]categoryEntry
}

func NewCategoryIndex() *MapCategoryIndex {
	return &MapCategoryIndex{entries: map[string]categoryEntry{}}
}

// Register associates classpath with the Category/Class pair StorageLoader
// hands to a freshly loaded Object whose stored record carries that tag.
func (idx *MapCategoryIndex) Register(classpath string, cat object.Category, class *object.Class) {
	idx.entries[classpath] = categoryEntry{category: cat, class: class}
}

func (idx *MapCategoryIndex) Category(classpath string) (object.Category, *object.Class, bool) {
	e, ok := idx.entries[classpath]
	return e.category, e.class, ok
}

// StorageLoader implements Loader against a storage.Stack: it selects the
// raw (id, json) record, runs it through a jsonx.Decoder to recover its
// field values and classpath tag, and resolves the classpath against a
// CategoryIndex (spec.md §4.F: "Storage -> JSONx decode -> Catalog ->
// Category").
type StorageLoader struct {
	Stack      *storage.Stack
	Classes    *jsonx.ClassRegistry
	Refs       jsonx.ReferenceResolver
	Categories CategoryIndex
}

func NewStorageLoader(stack *storage.Stack, classes *jsonx.ClassRegistry, refs jsonx.ReferenceResolver, categories CategoryIndex) *StorageLoader {
	return &StorageLoader{Stack: stack, Classes: classes, Refs: refs, Categories: categories}
}

func (l *StorageLoader) LoadRecord(ctx context.Context, id int64) (*catalog.Catalog, object.Category, *object.Class, error) {
	rec, ok, err := l.Stack.Select(ctx, id)
	if err != nil {
		return nil, nil, nil, schematerr.Wrap(schematerr.KindObjectNotFound, fmt.Sprintf("storage loader: select(%d)", id), err)
	}
	if !ok {
		return nil, nil, nil, schematerr.New(schematerr.KindObjectNotFound, fmt.Sprintf("storage loader: no record for id %d", id))
	}

	var raw any
	if err := json.Unmarshal(rec.Data, &raw); err != nil {
		return nil, nil, nil, schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage loader: unmarshal id %d", id), err)
	}

	fields, classpath, err := jsonx.NewDecoder(l.Classes, l.Refs).DecodeRecord(raw)
	if err != nil {
		return nil, nil, nil, schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage loader: decode record %d", id), err)
	}

	cat, class, ok := l.Categories.Category(classpath)
	if !ok {
		return nil, nil, nil, schematerr.New(schematerr.KindObjectNotFound, fmt.Sprintf("storage loader: unknown category %q for id %d", classpath, id))
	}

	own, err := catalog.Load(fields)
	if err != nil {
		return nil, nil, nil, schematerr.Wrap(schematerr.KindValidation, fmt.Sprintf("storage loader: load catalog %d", id), err)
	}
	return own, cat, class, nil
}
