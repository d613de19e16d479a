// Copyright 2026 The AgencyDesk Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import "errors"

// Domain errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTokenInvalid     = errors.New("token is invalid or expired")
)

// User is the signed-in identity supplied by the external auth provider.
// This core never creates or mutates users; it only consumes them.
type User struct {
	ID          string
	Email       string
	DisplayName string
}
