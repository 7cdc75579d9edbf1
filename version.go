package menuflow

// Version is the released version of menuflow.
const Version = "0.1.0"
