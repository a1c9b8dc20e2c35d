package fastview

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClient(t *testing.T) {
	Convey("When a web client connects", t, func() {
		updates := make(chan []EleUpdate)
		result := make(chan error, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cli, err := NewClient[[]EleUpdate](updates, w, r)
			if err != nil {
				result <- err
				return
			}
			result <- cli.Sync()
		}))
		Reset(srv.Close)

		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		Reset(func() { _ = conn.Close() })

		Convey("It receives published updates and a normal close once updates end", func() {
			want := []EleUpdate{{EleId: "0-0-value-text", Ops: []Op{{Key: "textContent", Value: "1.00"}}}}
			updates <- want

			got := []EleUpdate{}
			So(conn.ReadJSON(&got), ShouldBeNil)
			So(got, ShouldResemble, want)

			close(updates)
			_, _, err := conn.ReadMessage()
			So(websocket.IsCloseError(err, websocket.CloseNormalClosure), ShouldBeTrue)
			So(<-result, ShouldBeNil)
		})
	})

	Convey("When a plain http request arrives", t, func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		_, err := NewClient[[]EleUpdate](make(chan []EleUpdate), rec, req)

		Convey("The upgrade is refused", func() {
			So(err, ShouldNotBeNil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
