// Package loader читает определения flow и шаблонов из YAML.
//
// Файл может содержать несколько документов, разделённых "---".
// Каждый документ начинается с поля kind:
//
//	kind: template
//	namespace: io.stencil.tests
//	id: template
//	tasks:
//	  - id: test
//	    type: log
//	    params:
//	      message: "{{ parent.outputs.args['my-forward'] }}"
//
// У задач без kind вариант выводится из полей: templateId означает
// включение шаблона, иначе задача обычная.
package loader
