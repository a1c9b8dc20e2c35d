// fastview builds simple server-side views: a data model is converted to a
// view-model, which is broadcast to one or more views that emit element updates.
package fastview

import (
	"html/template"
)

// EleUpdate is an element id and the operations to apply to its attributes or content.
type EleUpdate struct {
	EleId string
	// Op keys are attribute names or 'textContent', which sets the element's text.
	Ops []Op
}

// Op is a key and value, e.g. an html attribute and its new value.
type Op struct {
	Key   string
	Value string
}

// ViewComponent is a server side view: Parse adds its initial form to a parent
// template, and Updates returns the chan of its element updates.
type ViewComponent interface {
	Updates() <-chan []EleUpdate
	// Parse defines the view within the parent template, inheriting its func-map,
	// and returns the name of the defined template.
	Parse(*template.Template) (string, error)
}
