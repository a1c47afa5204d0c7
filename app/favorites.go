// Package app enforces favorite-city limits for authenticated users.
package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/yumekooo16/meteonext/app/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	FreeFavoriteLimit    = 3
	PremiumFavoriteLimit = 50
)

var errDuplicateFavorite = errors.New("city already in favorites")

type favoriteLimitError struct {
	Limit int
	Count int
}

func (e favoriteLimitError) Error() string {
	return "favorite limit reached"
}

// favoriteLimitFor returns the per-plan favorite cap.
func favoriteLimitFor(premium bool) int {
	if premium {
		return PremiumFavoriteLimit
	}
	return FreeFavoriteLimit
}

// canAddFavorite rejects an insert that would exceed the plan's cap.
func canAddFavorite(premium bool, current int) error {
	limit := favoriteLimitFor(premium)
	if current >= limit {
		return favoriteLimitError{Limit: limit, Count: current}
	}
	return nil
}

// addFavorite inserts a favorite after checking the plan cap inside one
// serializable transaction, so two concurrent inserts cannot both pass the
// count check.
func addFavorite(ctx context.Context, userID, cityName string, premium bool) (*models.Favorite, error) {
	cityName = strings.TrimSpace(cityName)

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*)
		FROM favorites
		WHERE user_id = $1;
	`, userID).Scan(&count)
	if err != nil {
		return nil, err
	}

	if err := canAddFavorite(premium, count); err != nil {
		return nil, err
	}

	fav := &models.Favorite{
		ID:       uuid.NewString(),
		UserID:   userID,
		CityName: cityName,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO favorites (id, user_id, city_name)
		VALUES ($1, $2, $3)
		RETURNING created_at;
	`, fav.ID, fav.UserID, fav.CityName).Scan(&fav.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, errDuplicateFavorite
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return fav, nil
}

func listFavorites(ctx context.Context, userID string) ([]models.Favorite, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, city_name, created_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY created_at ASC;
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Favorite{}
	for rows.Next() {
		var f models.Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.CityName, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func countFavorites(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT count(*) FROM favorites WHERE user_id = $1;
	`, userID).Scan(&count)
	return count, err
}

// deleteFavorite removes a favorite if it belongs to userID.
func deleteFavorite(ctx context.Context, userID, favoriteID string) (bool, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM favorites
		WHERE id = $1 AND user_id = $2;
	`, favoriteID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
