package protocol

// PingReply implements the PING handler shared by every dialect: a server
// being PINGed must reply with PONG, and must refuse to relay a PING
// targeted at a third server (acting as a hub) since this link has exactly
// one uplink.
//
// localName is this link's own server name; uplinkName is the configured
// uplink's server name.
func PingReply(localName, uplinkName string, params []string) (string, *Error) {
	if len(params) < 1 {
		return "", &Error{
			Kind: MissingParameter,
			Desc: "No parameters found; expected at least 1.",
		}
	}

	if len(params) >= 2 && params[1] != localName {
		return "", &Error{
			Kind:   InvalidParameter,
			Desc:   "Request to act as a hub",
			Detail: "PING " + params[0] + " :" + params[1],
		}
	}

	if params[0] != uplinkName {
		return "PONG " + localName + " :" + params[0] + "\r\n", nil
	}
	return "PONG :" + localName + "\r\n", nil
}
