package stock

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
	internalstock "github.com/angelmondragon/feedledger-backend/internal/stock"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/feedledger-backend/pkg/errors"
)

func kg(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeReader struct {
	items      []models.FeedStockItem
	lastFilter internalstock.Filter
	threshold  decimal.Decimal
	err        error
}

func (f *fakeReader) List(_ context.Context, filter internalstock.Filter) ([]models.FeedStockItem, error) {
	f.lastFilter = filter
	return f.items, f.err
}

func (f *fakeReader) GetByID(_ context.Context, id uuid.UUID) (*models.FeedStockItem, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			return &f.items[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock item not found")
}

func (f *fakeReader) SetThreshold(ctx context.Context, id uuid.UUID, threshold decimal.Decimal) (*models.FeedStockItem, error) {
	if threshold.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "min_quantity_kg must not be negative")
	}
	f.threshold = threshold
	item, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	item.MinQuantityKg = threshold
	return item, nil
}

type fakeMutator struct {
	restock ledger.RestockCommand
	consume ledger.ConsumeCommand
	item    models.FeedStockItem
	err     error
}

func (f *fakeMutator) Restock(_ context.Context, cmd ledger.RestockCommand) (*ledger.RestockResult, error) {
	f.restock = cmd
	if f.err != nil {
		return nil, f.err
	}
	item := f.item
	item.QuantityKg = item.QuantityKg.Add(cmd.QuantityKg)
	return &ledger.RestockResult{Item: &item, Movement: movement(item.ID, enums.MovementRestock, cmd.QuantityKg, item.QuantityKg), Created: true}, nil
}

func (f *fakeMutator) Consume(_ context.Context, cmd ledger.ConsumeCommand) (*ledger.ConsumeResult, error) {
	f.consume = cmd
	if f.err != nil {
		return nil, f.err
	}
	item := f.item
	item.QuantityKg = item.QuantityKg.Sub(cmd.QuantityKg)
	return &ledger.ConsumeResult{Item: &item, Movement: movement(item.ID, enums.MovementConsumption, cmd.QuantityKg, item.QuantityKg), BecameLow: item.IsLow()}, nil
}

func movement(itemID uuid.UUID, typ enums.MovementType, qty, balance decimal.Decimal) *ledger.MovementRecord {
	direction := 1
	if typ == enums.MovementConsumption {
		direction = -1
	}
	return &ledger.MovementRecord{
		FeedStockMovement: models.FeedStockMovement{
			ID:             uuid.New(),
			StockItemID:    itemID,
			Type:           typ,
			Direction:      direction,
			QuantityKg:     qty,
			BalanceAfterKg: balance,
			OccurredAt:     time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		},
		FeedType:    enums.FeedTypeStarter,
		LocationKey: "global",
	}
}

func starterItem(qty string) models.FeedStockItem {
	return models.FeedStockItem{
		ID:            uuid.New(),
		FeedType:      enums.FeedTypeStarter,
		LocationType:  enums.LocationGlobal,
		LocationKey:   "global",
		QuantityKg:    kg(qty),
		MinQuantityKg: kg("100"),
	}
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Data
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestListParsesFilters(t *testing.T) {
	reader := &fakeReader{items: []models.FeedStockItem{starterItem("80")}}
	siteID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed/stock?feed_type=pre-layer&location_type=site&site_id="+siteID.String(), nil)
	rec := httptest.NewRecorder()

	List(reader, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, reader.lastFilter.FeedType)
	assert.Equal(t, enums.FeedTypePreLayer, *reader.lastFilter.FeedType)
	assert.Equal(t, enums.LocationSite, *reader.lastFilter.LocationType)
	assert.Equal(t, siteID, *reader.lastFilter.SiteID)
	assert.Nil(t, reader.lastFilter.BuildingID)

	var payload struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 1)
	assert.Equal(t, 80.0, payload.Data[0]["quantity_kg"])
	assert.Equal(t, true, payload.Data[0]["is_low"])
	assert.Equal(t, "J1-J14", payload.Data[0]["age_range"])
}

func TestListRejectsBadFilters(t *testing.T) {
	for _, query := range []string{"feed_type=mash", "location_type=farm", "site_id=nope"} {
		rec := httptest.NewRecorder()
		List(&fakeReader{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed/stock?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
		assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, rec), query)
	}
}

func TestDetail(t *testing.T) {
	item := starterItem("500")
	reader := &fakeReader{items: []models.FeedStockItem{item}}

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "stockId", item.ID.String())
	Detail(reader, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, item.ID.String(), decodeData(t, rec)["id"])

	rec = httptest.NewRecorder()
	req = withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "stockId", uuid.NewString())
	Detail(reader, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	req = withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "stockId", "abc")
	Detail(reader, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateThreshold(t *testing.T) {
	item := starterItem("500")
	reader := &fakeReader{items: []models.FeedStockItem{item}}

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"min_quantity_kg":"250,5"}`)), "stockId", item.ID.String())
	UpdateThreshold(reader, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, kg("250.5").Equal(reader.threshold))
	assert.Equal(t, 250.5, decodeData(t, rec)["min_quantity_kg"])

	rec = httptest.NewRecorder()
	req = withURLParam(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"min_quantity_kg":-1}`)), "stockId", item.ID.String())
	UpdateThreshold(reader, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeInvalidQuantity), decodeErrorCode(t, rec))
}

func TestRestockBuildsCommand(t *testing.T) {
	mutator := &fakeMutator{item: starterItem("0")}
	siteID, buildingID := uuid.New(), uuid.New()
	body := `{
		"feed_type": "starter",
		"location_type": "building",
		"site_id": "` + siteID.String() + `",
		"building_id": "` + buildingID.String() + `",
		"quantity_kg": "500",
		"supplier_name": "Provenda SA",
		"unit_price": 0.45,
		"occurred_at": "2026-03-01T08:00:00Z"
	}`
	rec := httptest.NewRecorder()
	Restock(mutator, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cmd := mutator.restock
	assert.Equal(t, enums.FeedTypeStarter, cmd.FeedType)
	assert.Equal(t, enums.LocationBuilding, cmd.Location.Type)
	assert.Equal(t, siteID, *cmd.Location.SiteID)
	assert.Equal(t, buildingID, *cmd.Location.BuildingID)
	assert.True(t, kg("500").Equal(cmd.QuantityKg))
	require.True(t, cmd.UnitPrice.Valid)
	assert.True(t, kg("0.45").Equal(cmd.UnitPrice.Decimal))
	assert.Equal(t, "Provenda SA", *cmd.SupplierName)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), cmd.OccurredAt)

	data := decodeData(t, rec)
	assert.Equal(t, true, data["created"])
	assert.Equal(t, 500.0, data["item"].(map[string]any)["quantity_kg"])
	assert.Equal(t, "restock", data["movement"].(map[string]any)["type"])
}

func TestRestockPassesUnknownLocationTypeToResolver(t *testing.T) {
	mutator := &fakeMutator{err: pkgerrors.New(pkgerrors.CodeInvalidLocation, "unknown location type")}
	rec := httptest.NewRecorder()
	Restock(mutator, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"feed_type":"layer","location_type":"farm","quantity_kg":10}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeInvalidLocation), decodeErrorCode(t, rec))
	assert.Equal(t, enums.LocationType("farm"), mutator.restock.Location.Type)
	assert.False(t, mutator.restock.UnitPrice.Valid)
}

func TestRestockRejectsInvalidBody(t *testing.T) {
	mutator := &fakeMutator{}
	rec := httptest.NewRecorder()
	Restock(mutator, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"feed_type":"mash","location_type":"global"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, rec))
	assert.Empty(t, mutator.restock.FeedType)
}

func TestConsumeBuildsCommandAndMapsShortfall(t *testing.T) {
	mutator := &fakeMutator{item: starterItem("500")}
	body := `{"feed_type":"starter","location_type":"global","quantity_kg":"37,05","lot_id":"LOT-7"}`
	rec := httptest.NewRecorder()
	Consume(mutator, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, kg("37.05").Equal(mutator.consume.QuantityKg))
	assert.Equal(t, "LOT-7", mutator.consume.LotID)
	data := decodeData(t, rec)
	assert.Equal(t, 462.95, data["item"].(map[string]any)["quantity_kg"])
	assert.Equal(t, false, data["became_low"])

	mutator.err = internalstock.InsufficientStock(kg("200"), kg("150"))
	rec = httptest.NewRecorder()
	Consume(mutator, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeInsufficientStock), decodeErrorCode(t, rec))
}

func TestConsumeRequiresLot(t *testing.T) {
	rec := httptest.NewRecorder()
	Consume(&fakeMutator{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"feed_type":"starter","location_type":"global","quantity_kg":5}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, rec))
}

func TestHandlersRequireDependencies(t *testing.T) {
	rec := httptest.NewRecorder()
	List(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	Consume(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
