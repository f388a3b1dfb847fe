package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/neverlinked/package-tracking/internal/geometry"
	"github.com/neverlinked/package-tracking/internal/tracker"
)

const ctxKeyContainerId ctxKey = "containerid"

// ContainerExtView represents the external view of a container for API responses
type ContainerExtView struct {
	Id            int64      `json:"id"`
	FirstDetected time.Time  `json:"first_detected"`
	ZoneId        *int       `json:"zone_id"`
	ZoneEntryTime *time.Time `json:"zone_entry_time"`
	ItemCount     int64      `json:"item_count"`
}

func (e *ContainerExtView) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s *ApiServer) apiContainerIdCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "containerid")
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			err := fmt.Errorf("invalid containerid param %q", key)
			render.Render(w, r, s.httpErrInvalidRequest(err))
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyContainerId, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *ApiServer) apiContainerRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.apiContainerGetAll)
	r.Route("/{containerid}", func(r chi.Router) {
		r.Use(s.apiContainerIdCtx)
		r.Get("/", s.apiContainerGet)
		r.Get("/item", s.apiContainerGetItems)
	})

	return r
}

func itemCounts(snap tracker.Snapshot) map[int64]int64 {
	counts := make(map[int64]int64)
	for _, it := range snap.Items {
		if it.ContainerID != nil {
			counts[*it.ContainerID]++
		}
	}

	return counts
}

func containerView(c tracker.ContainerRow, count int64) *ContainerExtView {
	return &ContainerExtView{
		Id:            c.ID,
		FirstDetected: c.FirstDetected,
		ZoneId:        c.ZoneIndex,
		ZoneEntryTime: c.ZoneEntry,
		ItemCount:     count,
	}
}

func (s *ApiServer) apiContainerGetAll(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	counts := itemCounts(snap)

	outs := []render.Renderer{}
	for _, c := range snap.Containers {
		outs = append(outs, containerView(c, counts[c.ID]))
	}

	render.RenderList(w, r, outs)
	return
}

func (s *ApiServer) findContainer(w http.ResponseWriter, r *http.Request) (tracker.ContainerRow, tracker.Snapshot, bool) {
	id, _ := getCtxValueInt64(r.Context(), ctxKeyContainerId)
	snap := s.tracker.Snapshot()
	for _, c := range snap.Containers {
		if c.ID == id {
			return c, snap, true
		}
	}

	err := fmt.Errorf("container %d not found", id)
	render.Render(w, r, s.httpErrNotFound(err))

	return tracker.ContainerRow{}, snap, false
}

func (s *ApiServer) apiContainerGet(w http.ResponseWriter, r *http.Request) {
	c, snap, ok := s.findContainer(w, r)
	if !ok {
		return
	}

	render.Render(w, r, containerView(c, itemCounts(snap)[c.ID]))
	return
}

func (s *ApiServer) apiContainerGetItems(w http.ResponseWriter, r *http.Request) {
	c, snap, ok := s.findContainer(w, r)
	if !ok {
		return
	}

	outs := []render.Renderer{}
	for _, it := range snap.Items {
		if it.ContainerID != nil && *it.ContainerID == c.ID {
			outs = append(outs, itemView(it))
		}
	}

	render.RenderList(w, r, outs)
	return
}

// ItemExtView represents the external view of an item for API responses
type ItemExtView struct {
	Id               int64     `json:"id"`
	ContainerId      *int64    `json:"container_id"`
	FirstDetected    time.Time `json:"first_detected"`
	AssignmentMethod string    `json:"assignment_method"`
}

func (e *ItemExtView) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func itemView(it tracker.ItemRow) *ItemExtView {
	return &ItemExtView{
		Id:               it.ID,
		ContainerId:      it.ContainerID,
		FirstDetected:    it.FirstDetected,
		AssignmentMethod: string(it.Method),
	}
}

func (s *ApiServer) apiItemRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.apiItemGetAll)

	return r
}

// apiItemGetAll lists item rows; ?unresolved=true keeps only rows without a
// container.
func (s *ApiServer) apiItemGetAll(w http.ResponseWriter, r *http.Request) {
	onlyUnresolved := false
	if q := r.URL.Query().Get("unresolved"); q != "" {
		v, err := strconv.ParseBool(q)
		if err != nil {
			render.Render(w, r, s.httpErrInvalidRequest(fmt.Errorf("invalid unresolved param %q", q)))
			return
		}
		onlyUnresolved = v
	}

	snap := s.tracker.Snapshot()

	outs := []render.Renderer{}
	for _, it := range snap.Items {
		if onlyUnresolved && it.Resolved() {
			continue
		}
		outs = append(outs, itemView(it))
	}

	render.RenderList(w, r, outs)
	return
}

// ZoneExtView represents the external view of a zone for API responses
type ZoneExtView struct {
	Index      int        `json:"index"`
	Rect       [4]float64 `json:"rect"`
	Side       bool       `json:"side"`
	Occupant   *int64     `json:"occupant"`
	Containers int64      `json:"container_count"`
	Count      int64      `json:"count"`
}

func (e *ZoneExtView) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s *ApiServer) apiZoneRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.apiZoneGetAll)

	return r
}

// apiZoneGetAll reports each zone with its current occupant. Count is the
// number of items resolved to containers last recorded in the zone.
func (s *ApiServer) apiZoneGetAll(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	counts := itemCounts(snap)
	line := s.tracker.MiddleLine()

	containers := make(map[int]int64)
	items := make(map[int]int64)
	for _, c := range snap.Containers {
		if c.ZoneIndex == nil {
			continue
		}
		containers[*c.ZoneIndex]++
		items[*c.ZoneIndex] += counts[c.ID]
	}

	outs := []render.Renderer{}
	for _, z := range s.tracker.Zones() {
		o := &ZoneExtView{
			Index:      z.Index,
			Rect:       [4]float64{z.Rect.X1, z.Rect.Y1, z.Rect.X2, z.Rect.Y2},
			Side:       geometry.SideOfLine(z.Centroid(), line),
			Containers: containers[z.Index],
			Count:      items[z.Index],
		}
		if id, ok := s.tracker.Occupant(z.Index); ok {
			o.Occupant = &id
		}

		outs = append(outs, o)
	}

	render.RenderList(w, r, outs)
	return
}
