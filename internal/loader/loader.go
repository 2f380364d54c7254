package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/engine"
)

// Виды документов.
const (
	KindFlow     = "flow"
	KindTemplate = "template"
)

// Document — один разобранный документ. Заполнено ровно одно из
// полей Flow и Template.
type Document struct {
	// Source — файл (или другое имя источника) документа.
	Source string

	Flow     *domain.Flow
	Template *domain.Template
}

// Name возвращает "<kind> <namespace>.<id>" для сообщений.
func (d Document) Name() string {
	if d.Flow != nil {
		return KindFlow + " " + d.Flow.Key().String()
	}
	return KindTemplate + " " + d.Template.Key().String()
}

// Bundle — набор документов, прочитанных из файлов.
type Bundle struct {
	Documents []Document
}

// Flows возвращает flow в порядке чтения.
func (b *Bundle) Flows() []*domain.Flow {
	var out []*domain.Flow
	for _, d := range b.Documents {
		if d.Flow != nil {
			out = append(out, d.Flow)
		}
	}
	return out
}

// Templates возвращает шаблоны в порядке чтения.
func (b *Bundle) Templates() []*domain.Template {
	var out []*domain.Template
	for _, d := range b.Documents {
		if d.Template != nil {
			out = append(out, d.Template)
		}
	}
	return out
}

// TemplateStore — куда регистрируются шаблоны.
type TemplateStore interface {
	Store(ctx context.Context, t *domain.Template) error
}

// FlowStore — куда сохраняются flow.
type FlowStore interface {
	Put(ctx context.Context, f *domain.Flow) error
}

// Validate проверяет все документы и возвращает все найденные ошибки.
func (b *Bundle) Validate(known engine.TypeChecker) error {
	var errs []error
	for _, d := range b.Documents {
		var err error
		if d.Flow != nil {
			err = engine.Validate(d.Flow, known)
		} else {
			err = engine.ValidateTemplate(d.Template, known)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", d.Source, d.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Register сохраняет сначала шаблоны, затем flow.
// Останавливается на первой ошибке.
func (b *Bundle) Register(ctx context.Context, templates TemplateStore, flows FlowStore) error {
	for _, d := range b.Documents {
		if d.Template == nil {
			continue
		}
		if err := templates.Store(ctx, d.Template); err != nil {
			return fmt.Errorf("%s: %w", d.Source, err)
		}
	}
	for _, d := range b.Documents {
		if d.Flow == nil {
			continue
		}
		if err := flows.Put(ctx, d.Flow); err != nil {
			return fmt.Errorf("%s: %s: %w", d.Source, d.Name(), err)
		}
	}
	return nil
}

// Parse читает все документы из r. source используется в ошибках.
func Parse(r io.Reader, source string) (*Bundle, error) {
	dec := yaml.NewDecoder(r)
	b := &Bundle{}

	for i := 0; ; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DocumentError{Source: source, Index: i, Err: fmt.Errorf("%w: %v", ErrInvalidDocument, err)}
		}
		if isEmpty(&node) {
			continue
		}

		doc, err := decodeDocument(&node)
		if err != nil {
			return nil, &DocumentError{Source: source, Index: i, Err: err}
		}
		doc.Source = source
		b.Documents = append(b.Documents, doc)
	}

	return b, nil
}

// LoadFile читает один файл.
func LoadFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f, path)
}

// LoadDir рекурсивно читает все *.yaml и *.yml файлы каталога
// в лексикографическом порядке путей.
func LoadDir(dir string) (*Bundle, error) {
	out := &Bundle{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}

		b, err := LoadFile(path)
		if err != nil {
			return err
		}
		out.Documents = append(out.Documents, b.Documents...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func isEmpty(node *yaml.Node) bool {
	if len(node.Content) == 0 {
		return true
	}
	root := node.Content[0]
	return root.Kind == yaml.ScalarNode && root.Tag == "!!null"
}

// decodeDocument разбирает документ по его полю kind.
func decodeDocument(node *yaml.Node) (Document, error) {
	var header struct {
		Kind string `yaml:"kind"`
	}
	if err := node.Decode(&header); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	switch strings.ToLower(strings.TrimSpace(header.Kind)) {
	case KindFlow:
		var f domain.Flow
		if err := node.Decode(&f); err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		if err := normalizeTasks(f.Tasks, f.Namespace); err != nil {
			return Document{}, err
		}
		return Document{Flow: &f}, nil

	case KindTemplate:
		var t domain.Template
		if err := node.Decode(&t); err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		if err := normalizeTasks(t.Tasks, t.Namespace); err != nil {
			return Document{}, err
		}
		return Document{Template: &t}, nil

	case "":
		return Document{}, fmt.Errorf("%w: missing kind", ErrUnknownDocument)

	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownDocument, header.Kind)
	}
}

// normalizeTasks выводит отсутствующий kind задач, подставляет
// namespace документа во включения без templateNamespace и
// проверяет согласованность вариантов.
func normalizeTasks(tasks []domain.TaskDef, namespace string) error {
	for i := range tasks {
		t := &tasks[i]
		if t.Kind == "" {
			if t.TemplateID != "" || t.TemplateNamespace != "" {
				t.Kind = domain.TaskKindTemplate
			} else {
				t.Kind = domain.TaskKindPlain
			}
		}
		if t.Kind == domain.TaskKindTemplate && t.TemplateNamespace == "" {
			t.TemplateNamespace = namespace
		}
		if err := t.CheckKind(); err != nil {
			return err
		}
	}
	return nil
}
