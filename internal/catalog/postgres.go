package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/offerbuddy/offerbuddy/internal/geo"
)

// PostgresProductRepository implements ProductRepository on PostgreSQL with
// PostGIS. FindNear uses ST_DWithin on a geography column so the radius is
// evaluated in meters by the database.
type PostgresProductRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresProductRepository creates a new PostgresProductRepository.
func NewPostgresProductRepository(db *sql.DB, logger *slog.Logger) *PostgresProductRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProductRepository{db: db, logger: logger}
}

const productColumns = `
	p.id, p.vendor_id, v.name, p.category_id, p.title, p.description,
	p.image_url, ST_X(p.location::geometry), ST_Y(p.location::geometry),
	p.location IS NOT NULL, p.original_price, p.discounted_price,
	p.offer_valid_until, p.views, p.created_at, p.updated_at`

// buildProductWhere renders the filter into WHERE clauses and args.
// The returned arg index continues from the last placeholder used.
func buildProductWhere(f Filter, args []any) ([]string, []any) {
	clauses := []string{"v.status = 'approved'"}

	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		clauses = append(clauses, "p.category_id = $"+strconv.Itoa(len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := strconv.Itoa(len(args))
		clauses = append(clauses, "(p.title ILIKE $"+n+" OR p.description ILIKE $"+n+")")
	}
	if f.MinPrice != nil {
		args = append(args, *f.MinPrice)
		clauses = append(clauses, "COALESCE(p.discounted_price, p.original_price, 0) >= $"+strconv.Itoa(len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, *f.MaxPrice)
		clauses = append(clauses, "COALESCE(p.discounted_price, p.original_price, 0) <= $"+strconv.Itoa(len(args)))
	}
	if f.HasOffer {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		args = append(args, now)
		clauses = append(clauses, "p.offer_valid_until >= $"+strconv.Itoa(len(args)))
	}

	return clauses, args
}

// Find returns products matching the filter.
func (r *PostgresProductRepository) Find(ctx context.Context, f Filter) ([]*Product, error) {
	clauses, args := buildProductWhere(f, nil)

	query := `SELECT ` + productColumns + `
		FROM products p
		JOIN vendors v ON v.id = p.vendor_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY p.created_at DESC, p.id`

	return r.queryProducts(ctx, query, args)
}

// FindNear returns filtered products within radiusMeters of the origin.
// ST_DWithin on geography is boundary-inclusive, matching the engine's
// <= radius contract.
func (r *PostgresProductRepository) FindNear(ctx context.Context, f Filter, origin geo.Coordinates, radiusMeters float64) ([]*Product, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}

	clauses, args := buildProductWhere(f, nil)

	args = append(args, origin.Lng, origin.Lat, radiusMeters)
	lng := strconv.Itoa(len(args) - 2)
	lat := strconv.Itoa(len(args) - 1)
	radius := strconv.Itoa(len(args))
	clauses = append(clauses,
		"p.location IS NOT NULL",
		"ST_DWithin(p.location, ST_SetSRID(ST_MakePoint($"+lng+", $"+lat+"), 4326)::geography, $"+radius+")",
	)

	query := `SELECT ` + productColumns + `
		FROM products p
		JOIN vendors v ON v.id = p.vendor_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY p.created_at DESC, p.id`

	return r.queryProducts(ctx, query, args)
}

func (r *PostgresProductRepository) queryProducts(ctx context.Context, query string, args []any) ([]*Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close product rows", "error", err)
		}
	}()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var (
		p          Product
		vendorName sql.NullString
		categoryID sql.NullString
		desc       sql.NullString
		imageURL   sql.NullString
		lng, lat   sql.NullFloat64
		hasLoc     bool
		origPrice  sql.NullFloat64
		discPrice  sql.NullFloat64
		validUntil sql.NullTime
	)

	if err := row.Scan(
		&p.ID, &p.VendorID, &vendorName, &categoryID, &p.Title, &desc,
		&imageURL, &lng, &lat, &hasLoc, &origPrice, &discPrice,
		&validUntil, &p.Views, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.VendorName = vendorName.String
	p.CategoryID = categoryID.String
	p.Description = desc.String
	p.ImageURL = imageURL.String
	if hasLoc && lng.Valid && lat.Valid {
		p.Location = &GeoPoint{Type: "Point", Coordinates: [2]float64{lng.Float64, lat.Float64}}
	}
	if origPrice.Valid {
		p.OriginalPrice = &origPrice.Float64
	}
	if discPrice.Valid {
		p.DiscountedPrice = &discPrice.Float64
	}
	if validUntil.Valid {
		p.OfferValidUntil = &validUntil.Time
	}
	return &p, nil
}

// GetByID retrieves a product by its ID.
func (r *PostgresProductRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products p
		JOIN vendors v ON v.id = p.vendor_id
		WHERE p.id = $1`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// Insert stores a new product.
func (r *PostgresProductRepository) Insert(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (
			id, vendor_id, category_id, title, description, image_url,
			location, original_price, discounted_price, offer_valid_until,
			views, created_at, updated_at
		) VALUES (
			$1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''),
			CASE WHEN $7 THEN ST_SetSRID(ST_MakePoint($8, $9), 4326)::geography END,
			$10, $11, $12, $13, $14, $15
		)`

	var lng, lat float64
	hasLoc := p.Location != nil
	if hasLoc {
		lng, lat = p.Location.Coordinates[0], p.Location.Coordinates[1]
	}

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.VendorID, p.CategoryID, p.Title, p.Description, p.ImageURL,
		hasLoc, lng, lat,
		p.OriginalPrice, p.DiscountedPrice, p.OfferValidUntil,
		p.Views, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// Update replaces a stored product's mutable fields.
func (r *PostgresProductRepository) Update(ctx context.Context, p *Product) error {
	query := `
		UPDATE products SET
			category_id = NULLIF($2, ''),
			title = $3,
			description = NULLIF($4, ''),
			image_url = NULLIF($5, ''),
			location = CASE WHEN $6 THEN ST_SetSRID(ST_MakePoint($7, $8), 4326)::geography END,
			original_price = $9,
			discounted_price = $10,
			offer_valid_until = $11,
			updated_at = $12
		WHERE id = $1`

	var lng, lat float64
	hasLoc := p.Location != nil
	if hasLoc {
		lng, lat = p.Location.Coordinates[0], p.Location.Coordinates[1]
	}

	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.CategoryID, p.Title, p.Description, p.ImageURL,
		hasLoc, lng, lat,
		p.OriginalPrice, p.DiscountedPrice, p.OfferValidUntil, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// IncrementViews adds delta to the product's view counter.
func (r *PostgresProductRepository) IncrementViews(ctx context.Context, id string, delta int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET views = views + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// PostgresVendorRepository implements VendorRepository on PostgreSQL with
// PostGIS.
type PostgresVendorRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresVendorRepository creates a new PostgresVendorRepository.
func NewPostgresVendorRepository(db *sql.DB, logger *slog.Logger) *PostgresVendorRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresVendorRepository{db: db, logger: logger}
}

const vendorColumns = `
	id, owner_user_id, name, description, status,
	ST_X(location::geometry), ST_Y(location::geometry), location IS NOT NULL,
	city, address, rating, views, created_at, updated_at`

// Find returns approved vendors matching the filter.
func (r *PostgresVendorRepository) Find(ctx context.Context, f Filter) ([]*Vendor, error) {
	clauses := []string{"status = 'approved'"}
	var args []any
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		clauses = append(clauses, "(name ILIKE $1 OR description ILIKE $1)")
	}

	query := `SELECT ` + vendorColumns + `
		FROM vendors
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY created_at DESC, id`

	return r.queryVendors(ctx, query, args)
}

// FindNear returns filtered vendors within radiusMeters of the origin.
func (r *PostgresVendorRepository) FindNear(ctx context.Context, f Filter, origin geo.Coordinates, radiusMeters float64) ([]*Vendor, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}

	clauses := []string{"status = 'approved'"}
	var args []any
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := strconv.Itoa(len(args))
		clauses = append(clauses, "(name ILIKE $"+n+" OR description ILIKE $"+n+")")
	}

	args = append(args, origin.Lng, origin.Lat, radiusMeters)
	lng := strconv.Itoa(len(args) - 2)
	lat := strconv.Itoa(len(args) - 1)
	radius := strconv.Itoa(len(args))
	clauses = append(clauses,
		"location IS NOT NULL",
		"ST_DWithin(location, ST_SetSRID(ST_MakePoint($"+lng+", $"+lat+"), 4326)::geography, $"+radius+")",
	)

	query := `SELECT ` + vendorColumns + `
		FROM vendors
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY created_at DESC, id`

	return r.queryVendors(ctx, query, args)
}

func (r *PostgresVendorRepository) queryVendors(ctx context.Context, query string, args []any) ([]*Vendor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendors: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close vendor rows", "error", err)
		}
	}()

	var vendors []*Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vendors: %w", err)
	}
	return vendors, nil
}

func scanVendor(row rowScanner) (*Vendor, error) {
	var (
		v        Vendor
		desc     sql.NullString
		lng, lat sql.NullFloat64
		hasLoc   bool
		city     sql.NullString
		address  sql.NullString
	)

	if err := row.Scan(
		&v.ID, &v.OwnerUserID, &v.Name, &desc, &v.Status,
		&lng, &lat, &hasLoc, &city, &address,
		&v.Rating, &v.Views, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}

	v.Description = desc.String
	v.City = city.String
	v.Address = address.String
	if hasLoc && lng.Valid && lat.Valid {
		v.Location = &GeoPoint{Type: "Point", Coordinates: [2]float64{lng.Float64, lat.Float64}}
	}
	return &v, nil
}

// GetByID retrieves a vendor by its ID.
func (r *PostgresVendorRepository) GetByID(ctx context.Context, id string) (*Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE id = $1`

	v, err := scanVendor(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVendorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return v, nil
}

// Insert stores a new vendor.
func (r *PostgresVendorRepository) Insert(ctx context.Context, v *Vendor) error {
	query := `
		INSERT INTO vendors (
			id, owner_user_id, name, description, status, location,
			city, address, rating, views, created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5,
			CASE WHEN $6 THEN ST_SetSRID(ST_MakePoint($7, $8), 4326)::geography END,
			NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, $14
		)`

	var lng, lat float64
	hasLoc := v.Location != nil
	if hasLoc {
		lng, lat = v.Location.Coordinates[0], v.Location.Coordinates[1]
	}

	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.OwnerUserID, v.Name, v.Description, v.Status,
		hasLoc, lng, lat,
		v.City, v.Address, v.Rating, v.Views, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vendor: %w", err)
	}
	return nil
}

// Update replaces a stored vendor's mutable fields.
func (r *PostgresVendorRepository) Update(ctx context.Context, v *Vendor) error {
	query := `
		UPDATE vendors SET
			name = $2,
			description = NULLIF($3, ''),
			status = $4,
			location = CASE WHEN $5 THEN ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography END,
			city = NULLIF($8, ''),
			address = NULLIF($9, ''),
			rating = $10,
			updated_at = $11
		WHERE id = $1`

	var lng, lat float64
	hasLoc := v.Location != nil
	if hasLoc {
		lng, lat = v.Location.Coordinates[0], v.Location.Coordinates[1]
	}

	res, err := r.db.ExecContext(ctx, query,
		v.ID, v.Name, v.Description, v.Status,
		hasLoc, lng, lat,
		v.City, v.Address, v.Rating, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update vendor: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrVendorNotFound
	}
	return nil
}

// IncrementViews adds delta to the vendor's view counter.
func (r *PostgresVendorRepository) IncrementViews(ctx context.Context, id string, delta int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE vendors SET views = views + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrVendorNotFound
	}
	return nil
}
