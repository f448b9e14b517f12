package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	itemsCollection     = "shop_items"
	customersCollection = "customers"
	ordersCollection    = "orders"
)

type itemDoc struct {
	ID             string               `bson:"_id"`
	Title          string               `bson:"title"`
	Price          primitive.Decimal128 `bson:"price"`
	AvailableCount int                  `bson:"availableCount"`
	Version        int                  `bson:"version"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
}

type customerDoc struct {
	ID        string            `bson:"_id"`
	Name      string            `bson:"name"`
	Email     string            `bson:"email"`
	Phone     string            `bson:"phone"`
	Address   string            `bson:"address"`
	Cart      []domain.CartLine `bson:"cart"`
	CreatedAt time.Time         `bson:"createdAt"`
	UpdatedAt time.Time         `bson:"updatedAt"`
}

type orderDoc struct {
	ID         string               `bson:"_id"`
	CustomerID string               `bson:"customerId"`
	Items      []domain.OrderLine   `bson:"items"`
	TotalBill  primitive.Decimal128 `bson:"totalBill"`
	CreatedAt  time.Time            `bson:"createdAt"`
}

// MongoAdapter stores customers with their cart embedded. Units of work use
// multi-document transactions, which need a replica set.
type MongoAdapter struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoAdapter(client *mongo.Client, database string) *MongoAdapter {
	return &MongoAdapter{client: client, db: client.Database(database)}
}

// EnsureIndexes creates the secondary indexes used by queries.
func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(ordersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create orders index: %w", err)
	}
	return nil
}

func (m *MongoAdapter) Repositories() port.Repositories {
	return port.Repositories{Catalog: m, Customers: m, Orders: m}
}

// Atomically runs fn inside a session transaction. The driver may call fn
// again on transient transaction errors.
func (m *MongoAdapter) Atomically(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	sess, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, m.Repositories())
	})
	return err
}

func (m *MongoAdapter) GetItem(ctx context.Context, itemID string) (*domain.ShopItem, error) {
	var doc itemDoc
	err := m.db.Collection(itemsCollection).FindOne(ctx, bson.M{"_id": itemID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find shop item: %w", err)
	}
	item, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (m *MongoAdapter) ListItems(ctx context.Context) ([]domain.ShopItem, error) {
	cur, err := m.db.Collection(itemsCollection).Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find shop items: %w", err)
	}
	var docs []itemDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode shop items: %w", err)
	}
	items := make([]domain.ShopItem, 0, len(docs))
	for _, d := range docs {
		item, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (m *MongoAdapter) SaveItem(ctx context.Context, item domain.ShopItem) error {
	price, err := primitive.ParseDecimal128(item.Price.String())
	if err != nil {
		return fmt.Errorf("encode price: %w", err)
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	_, err = m.db.Collection(itemsCollection).UpdateOne(ctx,
		bson.M{"_id": item.ID},
		bson.M{
			"$set": bson.M{
				"title":          item.Title,
				"price":          price,
				"availableCount": item.AvailableCount,
				"updatedAt":      now,
			},
			"$inc":         bson.M{"version": 1},
			"$setOnInsert": bson.M{"createdAt": item.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert shop item: %w", err)
	}
	return nil
}

func (m *MongoAdapter) DeductStock(ctx context.Context, itemID string, quantity int) error {
	res, err := m.db.Collection(itemsCollection).UpdateOne(ctx,
		bson.M{"_id": itemID, "availableCount": bson.M{"$gte": quantity}},
		bson.M{
			"$inc": bson.M{"availableCount": -quantity, "version": 1},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("update shop item: %w", err)
	}
	if res.MatchedCount == 0 {
		return port.ErrStockConflict
	}
	return nil
}

func (m *MongoAdapter) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var doc customerDoc
	err := m.db.Collection(customersCollection).FindOne(ctx, bson.M{"_id": customerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return &domain.Customer{
		ID:        doc.ID,
		Name:      doc.Name,
		Email:     doc.Email,
		Phone:     doc.Phone,
		Address:   doc.Address,
		Cart:      domain.NewCart(doc.Cart...),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (m *MongoAdapter) SaveCustomer(ctx context.Context, c domain.Customer) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	doc := customerDoc{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		Cart:      c.Cart.Lines(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	_, err := m.db.Collection(customersCollection).ReplaceOne(ctx, bson.M{"_id": c.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("replace customer: %w", err)
	}
	return nil
}

func (m *MongoAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	total, err := primitive.ParseDecimal128(order.TotalBill.String())
	if err != nil {
		return fmt.Errorf("encode total: %w", err)
	}
	_, err = m.db.Collection(ordersCollection).InsertOne(ctx, orderDoc{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Items:      order.Items,
		TotalBill:  total,
		CreatedAt:  order.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MongoAdapter) ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	cur, err := m.db.Collection(ordersCollection).Find(ctx,
		bson.M{"customerId": customerID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		total, err := decimal.NewFromString(d.TotalBill.String())
		if err != nil {
			return nil, fmt.Errorf("decode total of order %s: %w", d.ID, err)
		}
		orders = append(orders, domain.Order{
			ID:         d.ID,
			CustomerID: d.CustomerID,
			Items:      d.Items,
			TotalBill:  total,
			CreatedAt:  d.CreatedAt,
		})
	}
	return orders, nil
}

func (d itemDoc) toDomain() (domain.ShopItem, error) {
	price, err := decimal.NewFromString(d.Price.String())
	if err != nil {
		return domain.ShopItem{}, fmt.Errorf("decode price of item %s: %w", d.ID, err)
	}
	return domain.ShopItem{
		ID:             d.ID,
		Title:          d.Title,
		Price:          price,
		AvailableCount: d.AvailableCount,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}
