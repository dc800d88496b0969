// Package profile looks up the tradesperson details printed on reports.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tradeproof/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

type Source interface {
	Profile(ctx context.Context, scope types.Scope) (types.IssuerProfile, error)
}

type CognitoAPI interface {
	AdminGetUser(ctx context.Context, params *cognitoidentityprovider.AdminGetUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminGetUserOutput, error)
}

// CognitoSource reads the issuer profile from user pool attributes. The
// caller id is the user's sub, which the pool accepts as a username.
type CognitoSource struct {
	client     CognitoAPI
	userPoolID string
}

func NewCognitoSource(client CognitoAPI, userPoolID string) *CognitoSource {
	return &CognitoSource{client: client, userPoolID: userPoolID}
}

func (c *CognitoSource) Profile(ctx context.Context, scope types.Scope) (types.IssuerProfile, error) {

	if err := scope.Validate(); err != nil {
		return types.IssuerProfile{}, err
	}

	out, err := c.client.AdminGetUser(ctx, &cognitoidentityprovider.AdminGetUserInput{
		UserPoolId: aws.String(c.userPoolID),
		Username:   aws.String(scope.UserID),
	})
	if err != nil {
		var notFound *ctypes.UserNotFoundException
		if errors.As(err, &notFound) {
			return types.IssuerProfile{}, types.NewError(types.KindNotFound, "Profile not found", err)
		}
		return types.IssuerProfile{}, fmt.Errorf("failed to fetch cognito user: %w", err)
	}

	return fromAttributes(out.UserAttributes), nil

}

func fromAttributes(attrs []ctypes.AttributeType) types.IssuerProfile {
	values := make(map[string]string, len(attrs))
	for _, a := range attrs {
		values[aws.ToString(a.Name)] = strings.TrimSpace(aws.ToString(a.Value))
	}

	contact := values["name"]
	if contact == "" {
		contact = strings.TrimSpace(values["given_name"] + " " + values["family_name"])
	}

	return types.IssuerProfile{
		BusinessName:  values["custom:business_name"],
		ContactName:   contact,
		Email:         values["email"],
		Phone:         values["phone_number"],
		Address:       values["address"],
		LicenseNumber: values["custom:license_number"],
	}
}

// StaticSource returns the same profile for every caller.
type StaticSource struct {
	profile types.IssuerProfile
}

func NewStaticSource(p types.IssuerProfile) *StaticSource {
	return &StaticSource{profile: p}
}

func (s *StaticSource) Profile(_ context.Context, scope types.Scope) (types.IssuerProfile, error) {
	if err := scope.Validate(); err != nil {
		return types.IssuerProfile{}, err
	}
	return s.profile, nil
}
