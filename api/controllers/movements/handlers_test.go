package movements

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/feedledger-backend/internal/ledger"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
	"github.com/angelmondragon/feedledger-backend/pkg/pagination"
)

type fakeLedger struct {
	query   ledger.MovementQuery
	reverse ledger.ReverseCommand
	page    *ledger.MovementPage
	err     error
}

func (f *fakeLedger) Movements(_ context.Context, query ledger.MovementQuery) (*ledger.MovementPage, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeLedger) Reverse(_ context.Context, cmd ledger.ReverseCommand) (*ledger.ReverseResult, error) {
	f.reverse = cmd
	if f.err != nil {
		return nil, f.err
	}
	item := &models.FeedStockItem{ID: uuid.New(), FeedType: enums.FeedTypeGrower, LocationType: enums.LocationGlobal, LocationKey: "global", QuantityKg: decimal.RequireFromString("300"), MinQuantityKg: decimal.RequireFromString("100")}
	original := record(item.ID, enums.MovementConsumption, -1, "50", "250")
	original.ID = cmd.MovementID
	adjustment := record(item.ID, enums.MovementAdjustment, 1, "50", "300")
	adjustment.ReversesMovementID = &original.ID
	return &ledger.ReverseResult{Item: item, Movement: &adjustment, Reversed: &original}, nil
}

func record(itemID uuid.UUID, typ enums.MovementType, direction int, qty, balance string) ledger.MovementRecord {
	return ledger.MovementRecord{
		FeedStockMovement: models.FeedStockMovement{
			ID:             uuid.New(),
			StockItemID:    itemID,
			Type:           typ,
			Direction:      direction,
			QuantityKg:     decimal.RequireFromString(qty),
			BalanceAfterKg: decimal.RequireFromString(balance),
			OccurredAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		},
		FeedType:    enums.FeedTypeGrower,
		LocationKey: "global",
	}
}

func reverseRequestFor(id, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, "/", nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}
	rc := chi.NewRouteContext()
	rc.URLParams.Add("movementId", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestListParsesQuery(t *testing.T) {
	stockID := uuid.New()
	svc := &fakeLedger{page: &ledger.MovementPage{
		Movements:  []ledger.MovementRecord{record(stockID, enums.MovementRestock, 1, "500", "500")},
		NextCursor: "next",
	}}
	url := "/api/v1/feed/movements?since=2026-03-01&until=2026-03-05T00:00:00Z&feed_type=grower&type=restock&stock_id=" + stockID.String() + "&limit=10&cursor=abc"
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := svc.query
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, "abc", q.Cursor)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *q.Since)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), *q.Until)
	assert.Equal(t, enums.FeedTypeGrower, q.FeedType)
	assert.Equal(t, enums.MovementRestock, q.Type)
	assert.Equal(t, stockID, *q.StockItemID)

	var payload struct {
		Data struct {
			Movements  []map[string]any `json:"movements"`
			NextCursor string           `json:"next_cursor"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Data.Movements, 1)
	assert.Equal(t, "next", payload.Data.NextCursor)
	assert.Equal(t, 500.0, payload.Data.Movements[0]["quantity_kg"])
}

func TestListPassesLotFilter(t *testing.T) {
	svc := &fakeLedger{page: &ledger.MovementPage{}}
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/movements?lot_id=%20LOT-2026-07%20", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.query.LotID)
	assert.Equal(t, "LOT-2026-07", *svc.query.LotID)

	rec = httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/movements?lot_id=", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.query.LotID)
}

func TestListDefaultsLimit(t *testing.T) {
	svc := &fakeLedger{page: &ledger.MovementPage{}}
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/movements", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pagination.DefaultLimit, svc.query.Limit)
	assert.Contains(t, rec.Body.String(), `"movements":[]`)
}

func TestListRejectsBadQuery(t *testing.T) {
	for _, query := range []string{"limit=0", "since=yesterday", "type=transfer", "feed_type=mash", "stock_id=1"} {
		rec := httptest.NewRecorder()
		List(&fakeLedger{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/movements?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestReverseWithAndWithoutBody(t *testing.T) {
	svc := &fakeLedger{}
	id := uuid.New()

	rec := httptest.NewRecorder()
	Reverse(svc, nil).ServeHTTP(rec, reverseRequestFor(id.String(), `{"reason":"  typo in quantity  "}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, id, svc.reverse.MovementID)
	assert.Equal(t, "typo in quantity", svc.reverse.Reason)

	var payload struct {
		Data struct {
			Movement map[string]any `json:"movement"`
			Reversed map[string]any `json:"reversed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "adjustment", payload.Data.Movement["type"])
	assert.Equal(t, id.String(), payload.Data.Movement["reverses_movement_id"])
	assert.Equal(t, id.String(), payload.Data.Reversed["id"])

	rec = httptest.NewRecorder()
	Reverse(svc, nil).ServeHTTP(rec, reverseRequestFor(id.String(), ""))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, svc.reverse.Reason)
}

func TestReverseMapsErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Reverse(&fakeLedger{}, nil).ServeHTTP(rec, reverseRequestFor("bad", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc := &fakeLedger{err: pkgerrors.New(pkgerrors.CodeStateConflict, "movement already reversed")}
	rec = httptest.NewRecorder()
	Reverse(svc, nil).ServeHTTP(rec, reverseRequestFor(uuid.NewString(), ""))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeStateConflict), errorCode(t, rec))

	svc.err = pkgerrors.New(pkgerrors.CodeBusy, "stock item busy")
	rec = httptest.NewRecorder()
	Reverse(svc, nil).ServeHTTP(rec, reverseRequestFor(uuid.NewString(), ""))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
