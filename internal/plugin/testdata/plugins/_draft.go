package draft

this file is ignored because of its name
