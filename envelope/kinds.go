package envelope

// Message kind strings. Each protocol operation has a unique kind; requests
// and responses come in pairs, events stand alone.
const (
	// Handshake
	KindValidateAppIdentityRequest        = "validateAppIdentityRequest"
	KindValidateAppIdentityResponse       = "validateAppIdentityResponse"
	KindValidateAppIdentityFailedResponse = "validateAppIdentityFailedResponse"
	KindGoodbye                           = "goodbye"

	// Liveness
	KindHeartbeatEvent                  = "heartbeatEvent"
	KindHeartbeatAcknowledgementRequest = "heartbeatAcknowledgementRequest"

	// Channels
	KindGetUserChannelsRequest             = "getUserChannelsRequest"
	KindGetUserChannelsResponse            = "getUserChannelsResponse"
	KindJoinUserChannelRequest             = "joinUserChannelRequest"
	KindJoinUserChannelResponse            = "joinUserChannelResponse"
	KindLeaveCurrentChannelRequest         = "leaveCurrentChannelRequest"
	KindLeaveCurrentChannelResponse        = "leaveCurrentChannelResponse"
	KindGetCurrentChannelRequest           = "getCurrentChannelRequest"
	KindGetCurrentChannelResponse          = "getCurrentChannelResponse"
	KindBroadcastRequest                   = "broadcastRequest"
	KindBroadcastResponse                  = "broadcastResponse"
	KindBroadcastEvent                     = "broadcastEvent"
	KindAddContextListenerRequest          = "addContextListenerRequest"
	KindAddContextListenerResponse         = "addContextListenerResponse"
	KindContextListenerUnsubscribeRequest  = "contextListenerUnsubscribeRequest"
	KindContextListenerUnsubscribeResponse = "contextListenerUnsubscribeResponse"
	KindChannelChangedEvent                = "channelChangedEvent"

	// Intents
	KindFindIntentRequest                 = "findIntentRequest"
	KindFindIntentResponse                = "findIntentResponse"
	KindRaiseIntentRequest                = "raiseIntentRequest"
	KindRaiseIntentResponse               = "raiseIntentResponse"
	KindRaiseIntentResultResponse         = "raiseIntentResultResponse"
	KindAddIntentListenerRequest          = "addIntentListenerRequest"
	KindAddIntentListenerResponse         = "addIntentListenerResponse"
	KindIntentListenerUnsubscribeRequest  = "intentListenerUnsubscribeRequest"
	KindIntentListenerUnsubscribeResponse = "intentListenerUnsubscribeResponse"
	KindIntentEvent                       = "intentEvent"
	KindIntentResultRequest               = "intentResultRequest"
	KindIntentResultResponse              = "intentResultResponse"

	// App directory
	KindOpenRequest             = "openRequest"
	KindOpenResponse            = "openResponse"
	KindFindInstancesRequest    = "findInstancesRequest"
	KindFindInstancesResponse   = "findInstancesResponse"
	KindGetAppMetadataRequest   = "getAppMetadataRequest"
	KindGetAppMetadataResponse  = "getAppMetadataResponse"

	// Diagnostics
	KindPingRequest  = "pingRequest"
	KindPingResponse = "pingResponse"
)

// IsHandshakeKind reports whether kind belongs to the identity-validation
// exchange. Handshake traffic is the only traffic permitted before the
// connection reaches the ready state.
func IsHandshakeKind(kind string) bool {
	switch kind {
	case KindValidateAppIdentityRequest,
		KindValidateAppIdentityResponse,
		KindValidateAppIdentityFailedResponse,
		KindGoodbye:
		return true
	default:
		return false
	}
}
