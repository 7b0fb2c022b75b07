package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/sugawarayuuta/sonnet"

	"github.com/okian/minerwatch/internal/adapters/http/api"
	"github.com/okian/minerwatch/internal/adapters/repository"
	"github.com/okian/minerwatch/internal/domain/types"
	"github.com/okian/minerwatch/pkg/logger"
	"github.com/okian/minerwatch/pkg/metrics"
)

func init() {
	_ = logger.Init()
	_ = logger.SetLevelString("error")
}

type mockDependencies struct {
	miners    []types.MinerView
	lookupErr error
}

func (m *mockDependencies) Lookup(_ context.Context, id string) (types.MinerView, error) {
	if m.lookupErr != nil {
		return types.MinerView{}, m.lookupErr
	}
	for _, v := range m.miners {
		if strings.EqualFold(v.PrimaryKey, id) || (v.Signature != "" && v.Signature == id) {
			return v, nil
		}
	}
	return types.MinerView{}, repository.ErrNotFound
}

func (m *mockDependencies) Miners(context.Context) []types.MinerView {
	return m.miners
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true, "miners": len(deps.miners)}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{miners: []types.MinerView{
			{PrimaryKey: "A", Signature: "s1", ClaimedRewards: 5, Status: "CLAIMED", HasRecentClaim: true},
			{PrimaryKey: "B", Status: "MINING", UnclaimedRewards: 2.5},
		}}
		mux := newMux(deps)

		Convey("When requesting /healthz", func() {
			metrics.RecordFrameReceived()
			w := serve(mux, http.MethodGet, "/healthz")

			Convey("Then Prometheus metrics are exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "minerwatch_feed_frames_received_total")
			})
		})

		Convey("When requesting /stats", func() {
			w := serve(mux, http.MethodGet, "/stats")

			Convey("Then stats are returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				var body map[string]any
				So(sonnet.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["started"], ShouldEqual, true)
			})
		})

		Convey("When listing miners", func() {
			w := serve(mux, http.MethodGet, "/miners")

			Convey("Then every miner is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body struct {
					Count  int               `json:"count"`
					Miners []types.MinerView `json:"miners"`
				}
				So(sonnet.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Count, ShouldEqual, 2)
				So(body.Miners[0].PrimaryKey, ShouldEqual, "A")
				So(body.Miners[1].UnclaimedRewards, ShouldEqual, 2.5)
			})
		})

		Convey("When fetching a miner by key and by signature", func() {
			byKey := serve(mux, http.MethodGet, "/miners/a")
			bySig := serve(mux, http.MethodGet, "/miners/s1")

			Convey("Then both return the same record", func() {
				So(byKey.Code, ShouldEqual, http.StatusOK)
				So(bySig.Code, ShouldEqual, http.StatusOK)
				So(byKey.Body.String(), ShouldEqual, bySig.Body.String())
				So(byKey.Body.String(), ShouldContainSubstring, `"has_recent_claim":true`)
			})
		})

		Convey("When fetching an unknown miner", func() {
			w := serve(mux, http.MethodGet, "/miners/nobody")

			Convey("Then 404 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Body.String(), ShouldContainSubstring, "not_found")
			})
		})

		Convey("When the path has no id or extra segments", func() {
			empty := serve(mux, http.MethodGet, "/miners/")
			nested := serve(mux, http.MethodGet, "/miners/a/b")

			Convey("Then 400 is returned", func() {
				So(empty.Code, ShouldEqual, http.StatusBadRequest)
				So(nested.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When using a write method", func() {
			w := serve(mux, http.MethodPost, "/miners")

			Convey("Then the route is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When requesting an unknown path", func() {
			w := serve(mux, http.MethodGet, "/unknown")

			Convey("Then 404 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestMinersHandler_Errors(t *testing.T) {
	Convey("Given a store that fails", t, func() {
		deps := &mockDependencies{lookupErr: errors.New("disk on fire")}
		mux := newMux(deps)

		Convey("When fetching a miner", func() {
			w := serve(mux, http.MethodGet, "/miners/a")

			Convey("Then 500 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldContainSubstring, "internal_error")
			})
		})

		Convey("When the store wraps not found", func() {
			deps.lookupErr = fmt.Errorf("lookup: %w", repository.ErrNotFound)
			w := serve(mux, http.MethodGet, "/miners/a")

			Convey("Then 404 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When listing an empty store", func() {
			w := serve(mux, http.MethodGet, "/miners")

			Convey("Then an empty array is returned", func() {
				So(w.Body.String(), ShouldContainSubstring, `"miners":[]`)
			})
		})
	})
}
