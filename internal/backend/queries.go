package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "github.com/Chative-reservations/server/pkg/logger"
)

// fetchDuration reads politicas.duracion_reserva, the authoritative reservation length.
func (g *Gateway) fetchDuration(ctx context.Context) (int, error) {
	raw, err := g.do(ctx, http.MethodGet, "/politicas", nil, nil)
	if err != nil {
		return 0, err
	}
	res, err := decodeResult(raw)
	if err != nil {
		return 0, fmt.Errorf("decode policies: %w", err)
	}
	return policyDuration(res)
}

func policyDuration(res Result) (int, error) {
	minutes, ok := IntValue(res.Map("politicas")["duracion_reserva"])
	if !ok {
		return 0, fmt.Errorf("policies carry no duracion_reserva")
	}
	return minutes, nil
}

// MenuQuery filters the menu read.
type MenuQuery struct {
	Category   string
	ShowImages bool
	DishName   string
}

// GetMenu reads the menu, optionally restricted to a category or a single dish.
func (g *Gateway) GetMenu(ctx context.Context, q MenuQuery) Result {
	query := url.Values{}
	if q.Category != "" {
		query.Set("categoria", q.Category)
	}
	res := g.call(ctx, http.MethodGet, "/ver-menu", query, nil)
	if !res.OK() {
		return res
	}

	if q.DishName != "" {
		dish, found := findDish(res, q.DishName)
		if !found {
			return Fail(fmt.Sprintf("No encontré el plato \"%s\" en la carta.", q.DishName))
		}
		res = Result{keySuccess: true, "plato": dish}
	}
	if !q.ShowImages {
		stripImages(res)
	}
	return res
}

// findDish scans the menu categories for a dish whose name contains name, case-insensitively.
func findDish(menu Result, name string) (map[string]any, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	var found map[string]any
	walkDishes(menu, func(dish map[string]any) bool {
		n, _ := dish["nombre"].(string)
		if strings.Contains(strings.ToLower(n), needle) {
			found = dish
			return false
		}
		return true
	})
	return found, found != nil
}

// walkDishes visits every object carrying a "nombre" inside the payload until visit returns false.
func walkDishes(v any, visit func(map[string]any) bool) bool {
	switch t := v.(type) {
	case Result:
		return walkDishes(map[string]any(t), visit)
	case map[string]any:
		if _, ok := t["nombre"].(string); ok {
			if _, hasPrice := t["precio"]; hasPrice {
				if !visit(t) {
					return false
				}
			}
		}
		for _, child := range t {
			if !walkDishes(child, visit) {
				return false
			}
		}
	case []any:
		for _, child := range t {
			if !walkDishes(child, visit) {
				return false
			}
		}
	}
	return true
}

func stripImages(v any) {
	switch t := v.(type) {
	case Result:
		stripImages(map[string]any(t))
	case map[string]any:
		for k, child := range t {
			if k == "imagen" || k == "imagen_url" {
				delete(t, k)
				continue
			}
			stripImages(child)
		}
	case []any:
		for _, child := range t {
			stripImages(child)
		}
	}
}

// GetHours reads opening hours, for a given date when one is supplied.
func (g *Gateway) GetHours(ctx context.Context, date string) Result {
	query := url.Values{}
	if date != "" {
		query.Set("fecha", date)
	}
	return g.call(ctx, http.MethodGet, "/consultar-horario", query, nil)
}

// GetPolicies reads operational policies. The duration in the answer refreshes the
// cache; it is informational and not used for availability math.
func (g *Gateway) GetPolicies(ctx context.Context) Result {
	res := g.call(ctx, http.MethodGet, "/politicas", nil, nil)
	if !res.OK() {
		return res
	}
	minutes, err := policyDuration(res)
	if err != nil {
		logx.Warn().Err(err).Msg("policy answer without duration")
		minutes = g.durations.Current()
	} else {
		minutes = g.durations.Store(minutes)
	}
	return res.With("duracion_min", minutes)
}

// GetRestaurantInfo answers general questions from the mirror snapshot. topic selects a
// section of the snapshot (e.g. "politicas", "contacto"); an empty topic returns everything.
func (g *Gateway) GetRestaurantInfo(ctx context.Context, topic, policyType string) Result {
	snap := g.mirror(ctx)
	if !snap.OK() {
		return snap
	}

	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" || topic == "general" {
		return snap
	}
	section, ok := snap[topic]
	if !ok {
		return Fail(fmt.Sprintf("No tengo información sobre \"%s\".", topic))
	}
	if policyType != "" {
		if m, ok := section.(map[string]any); ok {
			if sub, ok := m[policyType]; ok {
				section = sub
			}
		}
	}

	out := Result{keySuccess: true, "tipo_consulta": topic, "informacion": section}
	if w, ok := snap["advertencia"]; ok {
		out["advertencia"] = w
	}
	return out
}

// GetSocialMedia returns the social network links held in the mirror snapshot.
func (g *Gateway) GetSocialMedia(ctx context.Context) Result {
	snap := g.mirror(ctx)
	if !snap.OK() {
		return snap
	}
	social := snap["redes_sociales"]
	if social == nil {
		return Fail("No hay redes sociales configuradas.")
	}
	out := Result{keySuccess: true, "redes_sociales": social}
	if w, ok := snap["advertencia"]; ok {
		out["advertencia"] = w
	}
	return out
}

// mirror reads the full snapshot and flags it when its last update is older than mirrorMaxAge.
func (g *Gateway) mirror(ctx context.Context) Result {
	res := g.call(ctx, http.MethodGet, "/espejo", nil, nil)
	if !res.OK() || g.mirrorMaxAge <= 0 {
		return res
	}
	stamp := res.String("ultima_actualizacion")
	if stamp == "" {
		return res
	}
	updated, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		logx.Debug().Err(err).Str("ultima_actualizacion", stamp).Msg("unparseable mirror timestamp")
		return res
	}
	if age := g.now().Sub(updated); age > g.mirrorMaxAge {
		res["advertencia"] = fmt.Sprintf("La información puede no estar actualizada (última actualización hace %d segundos).", int(age.Seconds()))
	}
	return res
}

// OrderLine is one dish in an order.
type OrderLine struct {
	Dish      string  `json:"plato"`
	Quantity  int     `json:"cantidad"`
	UnitPrice float64 `json:"precio_unitario"`
	Notes     string  `json:"notas,omitempty"`
}

// OrderRequest is a table or takeaway order.
type OrderRequest struct {
	CustomerName  string      `json:"cliente_nombre"`
	CustomerPhone string      `json:"cliente_telefono"`
	Lines         []OrderLine `json:"detalles_pedido"`
	Total         float64     `json:"total"`
	TableID       *int        `json:"mesa_id,omitempty"`
	Notes         string      `json:"notas,omitempty"`
}

// CreateOrder validates and sends an order.
func (g *Gateway) CreateOrder(ctx context.Context, o OrderRequest) Result {
	if strings.TrimSpace(o.CustomerName) == "" {
		return Fail("Necesito el nombre del cliente para registrar el pedido.")
	}
	if len(o.Lines) == 0 {
		return Fail("El pedido no tiene platos.")
	}
	for _, l := range o.Lines {
		if l.Quantity <= 0 {
			return Fail(fmt.Sprintf("La cantidad de \"%s\" debe ser mayor que cero.", l.Dish))
		}
	}
	o.CustomerPhone = NormalizePhone(o.CustomerPhone)
	return g.call(ctx, http.MethodPost, "/crear-pedido", nil, o)
}
