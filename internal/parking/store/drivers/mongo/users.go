package mongo

import (
	"context"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// userDoc keeps the lockout as the violation_detected flag on disk and maps
// it to domain.AccountState on the way in and out.
type userDoc struct {
	ID      string `bson:"_id"`
	Profile struct {
		Username        string    `bson:"username"`
		Email           string    `bson:"email"`
		IsAdmin         bool      `bson:"is_admin"`
		BadgeExpiration time.Time `bson:"badge_expiration"`
	} `bson:"profile"`
	AuthBytes         string      `bson:"auth_bytes"`
	ViolationDetected bool        `bson:"violation_detected"`
	IsParked          bool        `bson:"is_parked"`
	NbReservations    int         `bson:"nb_reservations"`
	PwdResetToken     string      `bson:"pwd_reset_tk"`
	Metadata          metadataDoc `bson:"metadata"`
}

func (d userDoc) toDomain() domain.User {
	account := domain.AccountActive
	if d.ViolationDetected {
		account = domain.AccountLocked
	}
	return domain.User{
		ID:              d.ID,
		Username:        d.Profile.Username,
		Email:           d.Profile.Email,
		IsAdmin:         d.Profile.IsAdmin,
		BadgeExpiration: d.Profile.BadgeExpiration,
		AuthSecret:      d.AuthBytes,
		Account:         account,
		IsParked:        d.IsParked,
		NbReservations:  d.NbReservations,
		PwdResetToken:   d.PwdResetToken,
		CreatedAt:       d.Metadata.CreatedAt,
		UpdatedAt:       d.Metadata.UpdatedAt,
	}
}

type usersRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func (r *usersRepo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return doc.toDomain(), nil
}

func (r *usersRepo) ListUsers(ctx context.Context, filter store.UserFilter) ([]domain.User, error) {
	q := bson.M{}
	if filter.IsAdmin != nil {
		q["profile.is_admin"] = *filter.IsAdmin
	}
	if filter.IsParked != nil {
		q["is_parked"] = *filter.IsParked
	}
	if filter.Locked != nil {
		q["violation_detected"] = *filter.Locked
	}

	cur, err := r.coll.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	users := make([]domain.User, len(docs))
	for i, d := range docs {
		users[i] = d.toDomain()
	}
	return users, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := r.now()

	doc := userDoc{
		ID:                u.ID,
		AuthBytes:         u.AuthSecret,
		ViolationDetected: u.Locked(),
		IsParked:          u.IsParked,
		NbReservations:    u.NbReservations,
		PwdResetToken:     u.PwdResetToken,
		Metadata:          metadataDoc{CreatedAt: now, UpdatedAt: now},
	}
	doc.Profile.Username = u.Username
	doc.Profile.Email = u.Email
	doc.Profile.IsAdmin = u.IsAdmin
	doc.Profile.BadgeExpiration = u.BadgeExpiration.UTC()

	_, err := r.coll.InsertOne(ctx, doc)
	return mapDuplicate(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, id string, patch store.UserPatch) error {
	return r.UpdateUserIf(ctx, id, store.UserCondition{}, patch)
}

func (r *usersRepo) UpdateUserIf(
	ctx context.Context,
	id string,
	cond store.UserCondition,
	patch store.UserPatch,
) error {
	set := bson.M{"metadata.updated_at": r.now()}
	if patch.Username != nil {
		set["profile.username"] = *patch.Username
	}
	if patch.Email != nil {
		set["profile.email"] = *patch.Email
	}
	if patch.IsAdmin != nil {
		set["profile.is_admin"] = *patch.IsAdmin
	}
	if patch.BadgeExpiration != nil {
		set["profile.badge_expiration"] = patch.BadgeExpiration.UTC()
	}
	if patch.AuthSecret != nil {
		set["auth_bytes"] = *patch.AuthSecret
	}
	if patch.Account != nil {
		set["violation_detected"] = *patch.Account == domain.AccountLocked
	}
	if patch.IsParked != nil {
		set["is_parked"] = *patch.IsParked
	}
	if patch.NbReservations != nil {
		set["nb_reservations"] = *patch.NbReservations
	}
	if patch.PwdResetToken != nil {
		set["pwd_reset_tk"] = *patch.PwdResetToken
	}

	guard := bson.M{}
	if cond.AuthSecret != nil {
		guard["auth_bytes"] = *cond.AuthSecret
	}
	if cond.Account != nil {
		guard["violation_detected"] = *cond.Account == domain.AccountLocked
	}
	if cond.NbReservations != nil {
		guard["nb_reservations"] = *cond.NbReservations
	}
	if cond.IsParked != nil {
		guard["is_parked"] = *cond.IsParked
	}

	return updateIf(ctx, r.coll, id, guard, set)
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return deleteByID(ctx, r.coll, id)
}
