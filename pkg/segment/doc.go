// Package segment resolves a named segment into an ordered list of recipients.
//
// The policy is fixed:
//
//	pro_users   plan in {pro, pro_plus}, no cap
//	free_users  plan = free, no cap
//	all_users   first 500 members
//	anything    first 100 members (including the empty segment)
//
// Unknown segments are not an error. The caps truncate silently; callers that
// must reach everyone use Size to learn how many were left out and Page to
// walk the remainder by member id.
//
// Members are always ordered by id, which is also the paging cursor.
package segment
