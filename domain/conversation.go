package domain

const keySeparator = "-"

// ConversationKey identifies the message log of one unordered pair of users.
type ConversationKey string

// DeriveKey sorts both identities and joins them, so DeriveKey(a, b) == DeriveKey(b, a).
func DeriveKey(userA, userB string) ConversationKey {
	if userB < userA {
		userA, userB = userB, userA
	}
	return ConversationKey(userA + keySeparator + userB)
}
