package fastview

import (
	"context"
	"html/template"
	"strconv"
	"testing"

	channerics "github.com/niceyeti/channerics/channels"
	. "github.com/smartystreets/goconvey/convey"
)

type textView struct {
	id      string
	updates <-chan []EleUpdate
}

func newTextView(id string) ViewBuilderFunc[string] {
	return func(done <-chan struct{}, texts <-chan string) ViewComponent {
		tv := &textView{id: id}
		tv.updates = channerics.Convert(done, texts, tv.onUpdate)
		return tv
	}
}

func (tv *textView) onUpdate(text string) []EleUpdate {
	return []EleUpdate{{EleId: tv.id, Ops: []Op{{Key: "textContent", Value: text}}}}
}

func (tv *textView) Updates() <-chan []EleUpdate {
	return tv.updates
}

func (tv *textView) Parse(t *template.Template) (string, error) {
	_, err := t.Parse(`{{ define "` + tv.id + `" }}<p id="` + tv.id + `">{{ . }}</p>{{ end }}`)
	return tv.id, err
}

func TestViewBuilder(t *testing.T) {
	Convey("When building views", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		Reset(cancel)
		input := make(chan int)

		Convey("Every view receives every converted model", func() {
			views, err := NewViewBuilder[int, string]().
				WithContext(ctx).
				WithModel(input, strconv.Itoa).
				WithView(newTextView("first")).
				WithView(newTextView("second")).
				Build()
			So(err, ShouldBeNil)
			So(views, ShouldHaveLength, 2)

			go func() {
				select {
				case input <- 7:
				case <-ctx.Done():
				}
			}()

			for i, id := range []string{"first", "second"} {
				updates := <-views[i].Updates()
				So(updates, ShouldResemble, []EleUpdate{
					{EleId: id, Ops: []Op{{Key: "textContent", Value: "7"}}},
				})
			}
		})

		Convey("Views must be added", func() {
			_, err := NewViewBuilder[int, string]().
				WithModel(input, strconv.Itoa).
				Build()
			So(err, ShouldEqual, ErrNoViews)
		})

		Convey("A model must be specified", func() {
			_, err := NewViewBuilder[int, string]().
				WithView(newTextView("first")).
				Build()
			So(err, ShouldEqual, ErrNoModel)
		})
	})
}
