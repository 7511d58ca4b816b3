// Package campaign implements campaign lifecycle management.
//
// The service layer contains all business logic for creating, starting,
// pausing, resuming, and cancelling dispatch campaigns. It depends on
// repository interfaces defined in this package and should never import
// from api/.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
