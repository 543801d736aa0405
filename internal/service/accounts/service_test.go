package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/oggyb/tweetheart/internal/app/apptest"
	"github.com/oggyb/tweetheart/internal/db"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/realtime"
	"github.com/oggyb/tweetheart/internal/service/accounts"
)

func validSignup() accounts.SignupRequest {
	return accounts.SignupRequest{
		Email:        "  Erin@Example.com ",
		Password:     "correct horse",
		FirstName:    "Erin",
		Gender:       "female",
		InterestedIn: "male",
		Birthdate:    "1992-03-04",
	}
}

func TestSignupAndLogin(t *testing.T) {
	env := apptest.New(t)
	svc := accounts.NewAccountService(env.App)
	ctx := context.Background()

	session, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)
	assert.Equal(t, "erin@example.com", session.User.Email)
	assert.Equal(t, "Erin", session.User.FirstName)

	claims, err := env.Sessions.Validate(session.Token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, id)

	var stored db.User
	require.NoError(t, env.App.DB.Where("id = ?", id).Take(&stored).Error)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)

	var welcome []db.Notification
	require.NoError(t, env.App.DB.Where("user_id = ?", id).Find(&welcome).Error)
	require.Len(t, welcome, 1)
	assert.Equal(t, db.NotificationSystem, welcome[0].Type)
	assert.Len(t, env.Events.To(realtime.UserRoom(id), realtime.EventNewNotification), 1)

	again, err := svc.Login(ctx, accounts.LoginRequest{Email: "ERIN@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, id, again.User.ID)
	assert.NotNil(t, again.User.LastLoginAt)

	me, err := svc.Me(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "erin@example.com", me.Email)
}

func TestSignupRejects(t *testing.T) {
	env := apptest.New(t)
	svc := accounts.NewAccountService(env.App)
	ctx := context.Background()

	cases := map[string]func(r *accounts.SignupRequest){
		"bad email":      func(r *accounts.SignupRequest) { r.Email = "not-an-email" },
		"short password": func(r *accounts.SignupRequest) { r.Password = "short" },
		"no first name":  func(r *accounts.SignupRequest) { r.FirstName = "  " },
		"bad gender":     func(r *accounts.SignupRequest) { r.Gender = "robot" },
		"bad interest":   func(r *accounts.SignupRequest) { r.InterestedIn = "robots" },
		"minor":          func(r *accounts.SignupRequest) { r.Birthdate = "2020-01-01" },
		"bad birthdate":  func(r *accounts.SignupRequest) { r.Birthdate = "04/03/1992" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validSignup()
			mutate(&req)
			_, err := svc.Signup(ctx, req)
			assert.Equal(t, codes.InvalidArgument, svcErr.Code(err))
		})
	}

	dup := validSignup()
	dup.Email = "u1@test.com"
	_, err := svc.Signup(ctx, dup)
	assert.Equal(t, codes.AlreadyExists, svcErr.Code(err))
}

func TestLoginRejects(t *testing.T) {
	env := apptest.New(t)
	svc := accounts.NewAccountService(env.App)
	ctx := context.Background()

	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	_, err = svc.Login(ctx, accounts.LoginRequest{Email: "erin@example.com", Password: "wrong password"})
	assert.Equal(t, codes.Unauthenticated, svcErr.Code(err))

	_, err = svc.Login(ctx, accounts.LoginRequest{Email: "nobody@example.com", Password: "correct horse"})
	assert.Equal(t, codes.Unauthenticated, svcErr.Code(err))

	_, err = svc.Login(ctx, accounts.LoginRequest{Email: "", Password: "correct horse"})
	assert.Equal(t, codes.Unauthenticated, svcErr.Code(err))
}
