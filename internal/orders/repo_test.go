package orders_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/ariefcatur/marketplace-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

// RepoSuite runs against a real database when ORDERS_TEST_POSTGRES_DSN is set.
type RepoSuite struct {
	suite.Suite
	ctx     context.Context
	db      *pgxpool.Pool
	repo    *orders.Repo
	catalog *orders.CatalogRepo
}

func TestRepoSuite(t *testing.T) {
	dsn := os.Getenv("ORDERS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ORDERS_TEST_POSTGRES_DSN not set")
	}
	suite.Run(t, &RepoSuite{})
}

func (s *RepoSuite) SetupSuite() {
	dsn := os.Getenv("ORDERS_TEST_POSTGRES_DSN")
	s.ctx = context.Background()
	s.Require().NoError(postgres.Migrate(dsn, zerolog.Nop()))
	db, err := postgres.Connect(s.ctx, dsn, postgres.PoolOptions{MaxConns: 16})
	s.Require().NoError(err)
	s.db = db
	s.repo = &orders.Repo{DB: db}
	s.catalog = &orders.CatalogRepo{DB: db}
}

func (s *RepoSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *RepoSuite) SetupTest() {
	_, err := s.db.Exec(s.ctx, `TRUNCATE order_items, orders, products RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
	_, err = s.db.Exec(s.ctx, `
		INSERT INTO products(id, seller_id, name, price, stock) VALUES
		('P', 'S1', 'Product P', 10.00, 5),
		('Q', 'S1', 'Product Q', 5.00, 3),
		('R', 'S2', 'Product R', 7.50, 9)`)
	s.Require().NoError(err)
}

func (s *RepoSuite) stock(id string) int {
	var n int
	s.Require().NoError(s.db.QueryRow(s.ctx, `SELECT stock FROM products WHERE id=$1`, id).Scan(&n))
	return n
}

func (s *RepoSuite) count(table string) int {
	var n int
	s.Require().NoError(s.db.QueryRow(s.ctx, `SELECT count(*) FROM `+table).Scan(&n))
	return n
}

func (s *RepoSuite) cart(items ...orders.ItemInput) orders.ValidatedCart {
	v := orders.Validator{Catalog: s.catalog}
	c, err := v.Validate(s.ctx, "B1", items)
	s.Require().NoError(err)
	return c
}

func (s *RepoSuite) TestCreateOrderWorkedExample() {
	o, err := s.repo.CreateOrderTx(s.ctx, "B1", s.cart(
		orders.ItemInput{ProductID: "P", Quantity: 2},
		orders.ItemInput{ProductID: "Q", Quantity: 1},
	))
	s.Require().NoError(err)
	s.Equal(orders.StatusPending, o.Status)
	s.True(o.Total.Equal(decimal.RequireFromString("25.00")))
	s.Equal(3, s.stock("P"))
	s.Equal(2, s.stock("Q"))

	got, err := s.repo.GetOrder(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(o.ID, got.ID)
	s.Len(got.Items, 2)
	s.True(got.Total.Equal(o.Total))
}

func (s *RepoSuite) TestStockDropBetweenCheckAndCommitRollsBack() {
	c := s.cart(
		orders.ItemInput{ProductID: "P", Quantity: 2},
		orders.ItemInput{ProductID: "Q", Quantity: 3},
	)
	_, err := s.db.Exec(s.ctx, `UPDATE products SET stock = 1 WHERE id = 'Q'`)
	s.Require().NoError(err)

	_, err = s.repo.CreateOrderTx(s.ctx, "B1", c)
	var se *orders.StockError
	s.Require().True(errors.As(err, &se))
	s.Equal("Q", se.ProductID)
	s.Equal(5, s.stock("P"))
	s.Equal(0, s.count("orders"))
	s.Equal(0, s.count("order_items"))
}

func (s *RepoSuite) TestConcurrentCheckoutNeverOversells() {
	c := s.cart(orders.ItemInput{ProductID: "P", Quantity: 1})

	var g errgroup.Group
	results := make([]error, 20)
	for i := range results {
		g.Go(func() error {
			_, results[i] = s.repo.CreateOrderTx(s.ctx, uuid.NewString(), c)
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		s.ErrorIs(err, orders.ErrInsufficientStock)
	}
	s.Equal(5, ok)
	s.Equal(0, s.stock("P"))
	s.Equal(5, s.count("orders"))
}

func (s *RepoSuite) TestUpdateStatusGuardsCurrentState() {
	o, err := s.repo.CreateOrderTx(s.ctx, "B1", s.cart(orders.ItemInput{ProductID: "P", Quantity: 2}))
	s.Require().NoError(err)

	shipped, err := s.repo.UpdateStatus(s.ctx, o.ID, orders.StatusPending, orders.StatusShipped, false)
	s.Require().NoError(err)
	s.Equal(orders.StatusShipped, shipped.Status)
	s.Len(shipped.Items, 1)

	_, err = s.repo.UpdateStatus(s.ctx, o.ID, orders.StatusPending, orders.StatusCancelled, true)
	s.ErrorIs(err, orders.ErrIllegalTransition)
	s.Equal(3, s.stock("P"))
}

func (s *RepoSuite) TestCancelRestocksInSameTransaction() {
	o, err := s.repo.CreateOrderTx(s.ctx, "B1", s.cart(
		orders.ItemInput{ProductID: "P", Quantity: 2},
		orders.ItemInput{ProductID: "Q", Quantity: 3},
	))
	s.Require().NoError(err)
	s.Equal(0, s.stock("Q"))

	_, err = s.repo.UpdateStatus(s.ctx, o.ID, orders.StatusPending, orders.StatusCancelled, true)
	s.Require().NoError(err)
	s.Equal(5, s.stock("P"))
	s.Equal(3, s.stock("Q"))
}

func (s *RepoSuite) TestListOrdersFilters() {
	_, err := s.repo.CreateOrderTx(s.ctx, "B1", s.cart(orders.ItemInput{ProductID: "P", Quantity: 1}))
	s.Require().NoError(err)
	v := orders.Validator{Catalog: s.catalog}
	c, err := v.Validate(s.ctx, "B2", []orders.ItemInput{{ProductID: "R", Quantity: 1}})
	s.Require().NoError(err)
	_, err = s.repo.CreateOrderTx(s.ctx, "B2", c)
	s.Require().NoError(err)

	list, err := s.repo.ListOrders(s.ctx, orders.ListFilter{SellerID: "S2"})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("B2", list[0].BuyerID)
	s.Len(list[0].Items, 1)

	list, err = s.repo.ListOrders(s.ctx, orders.ListFilter{Status: orders.StatusPending, Limit: 1})
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *RepoSuite) TestGetOrderNotFound() {
	_, err := s.repo.GetOrder(s.ctx, uuid.NewString())
	s.ErrorIs(err, orders.ErrNotFound)
	_, err = s.repo.GetOrder(s.ctx, "not-a-uuid")
	s.ErrorIs(err, orders.ErrNotFound)
}

func (s *RepoSuite) TestMarkPaidKeepsFirstReference() {
	o, err := s.repo.CreateOrderTx(s.ctx, "B1", s.cart(orders.ItemInput{ProductID: "P", Quantity: 1}))
	s.Require().NoError(err)

	paid, err := s.repo.MarkPaid(s.ctx, orders.PaymentConfirmation{OrderID: o.ID, PaymentRef: "pay_1"})
	s.Require().NoError(err)
	s.Equal("pay_1", paid.PaymentRef)
	s.NotNil(paid.PaidAt)

	again, err := s.repo.MarkPaid(s.ctx, orders.PaymentConfirmation{OrderID: o.ID, PaymentRef: "pay_2"})
	s.Require().NoError(err)
	s.Equal("pay_1", again.PaymentRef)
}

func (s *RepoSuite) TestLookupProduct() {
	p, err := s.catalog.LookupProduct(s.ctx, "P")
	s.Require().NoError(err)
	s.Equal("S1", p.SellerID)
	s.True(p.Price.Equal(decimal.RequireFromString("10.00")))

	_, err = s.catalog.LookupProduct(s.ctx, "missing")
	s.ErrorIs(err, orders.ErrProductNotFound)
}
