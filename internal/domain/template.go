package domain

// Template — именованный переиспользуемый список задач.
//
// Ключ (Namespace, ID) глобально уникален. После сохранения шаблон
// не изменяется: повторное сохранение с тем же ключом — конфликт.
type Template struct {
	// ID — идентификатор шаблона внутри namespace.
	ID string `json:"id" yaml:"id"`

	// Namespace — пространство имён шаблона.
	Namespace string `json:"namespace" yaml:"namespace"`

	// Description — описание шаблона.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Tasks — упорядоченный список задач. Может содержать включения
	// других шаблонов.
	Tasks []TaskDef `json:"tasks" yaml:"tasks"`
}

// Key возвращает ключ шаблона.
func (t *Template) Key() TemplateKey {
	return TemplateKey{Namespace: t.Namespace, ID: t.ID}
}

// Clone возвращает глубокую копию шаблона.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	out.Tasks = CloneTasks(t.Tasks)
	return &out
}

// TemplateKey — составной ключ шаблона.
type TemplateKey struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
}

// String возвращает "<namespace>.<id>" — формат, используемый в сообщениях.
func (k TemplateKey) String() string {
	return k.Namespace + "." + k.ID
}
