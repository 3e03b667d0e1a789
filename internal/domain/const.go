package domain

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleSuperAdmin     Role = "super_admin"
	RoleTrusted        Role = "trusted"
	RoleSpam           Role = "spam"
	RoleSuspended      Role = "suspended"
	RoleSubscriber     Role = "subscriber"
	RoleBaseSubscriber Role = "base_subscriber"
)

type ReactionCategory string

const (
	CategoryLike          ReactionCategory = "like"
	CategoryUnicorn       ReactionCategory = "unicorn"
	CategoryExplodingHead ReactionCategory = "exploding_head"
	CategoryRaisedHands   ReactionCategory = "raised_hands"
	CategoryFire          ReactionCategory = "fire"
	CategoryReadingList   ReactionCategory = "readinglist"
	CategoryVomit         ReactionCategory = "vomit"
	CategoryThumbsDown    ReactionCategory = "thumbsdown"
)

// OrganicCategories are the reaction categories a reaction ring inflates.
var OrganicCategories = []ReactionCategory{
	CategoryLike,
	CategoryUnicorn,
	CategoryExplodingHead,
	CategoryRaisedHands,
	CategoryFire,
	CategoryReadingList,
}

type ReactionStatus string

const (
	StatusValid     ReactionStatus = "valid"
	StatusConfirmed ReactionStatus = "confirmed"
	StatusInvalid   ReactionStatus = "invalid"
)

const (
	ReasonAutomaticSuspend      = "automatic_suspend"
	ReasonReactionRingDetection = "reaction_ring_detection"
)

const (
	FlagMoreRigorousProfileChecking = "more_rigorous_user_profile_spam_checking"
	FlagUnpublishOnAutoSuspend      = "unpublish_all_posts_on_auto_suspend"
)
