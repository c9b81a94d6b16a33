package common

// AuthorizationHeaderName is the HTTP header carrying the bearer token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token in the Authorization header.
const BearerPrefix = "Bearer "

// IdentifierAlphabet excludes characters that are easy to confuse when read
// aloud or copied by hand (0/O, 1/l/I, o, q...).
const IdentifierAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnprstuvwxyz2345678"
