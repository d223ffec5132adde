package stores

// Local cache keys. The names are shared with existing browser data and must not change.
const (
	KeyCredentials      = "lagosOracleApiKeys_v2"
	KeyDarkMode         = "darkModeLagosOracle"
	KeySoundEnabled     = "soundEnabledLagosOracle"
	KeySelectedPersona  = "selectedPersonaLagosOracle_v1"
	KeyConversations    = "lagosOracleConversations_v1"
	KeyCurrentConvID    = "lagosOracleCurrentConversationId_v1"
	KeySelectedProvider = "lagosOracleSelectedProvider_v1"
	KeyImageStyle       = "lagosOracleImageStyle_v1"
)
